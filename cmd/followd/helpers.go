package main

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/charlie0129/followd/pkg/client"
)

func parseDurationArg(args []string, valueName string) (time.Duration, error) {
	if len(args) != 1 {
		return 0, fmt.Errorf("invalid number of arguments")
	}

	value, err := time.ParseDuration(args[0])
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %v", valueName, err)
	}

	return value, nil
}

func logResponse(ret string) {
	if ret != "" {
		logrus.Infof("daemon responded: %s", client.Unquote(ret))
	}
}
