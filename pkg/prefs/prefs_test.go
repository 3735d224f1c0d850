package prefs_test

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/charlie0129/followd/pkg/prefs"
	"github.com/charlie0129/followd/pkg/types"
)

var _ = Describe("Store", func() {
	var dir string

	BeforeEach(func() {
		dir = GinkgoT().TempDir()
	})

	backends := map[string]string{
		"json file": "prefs.json",
		"sqlite":    "prefs.db",
	}

	for name, file := range backends {
		Context(name, func() {
			var (
				s    prefs.Store
				path string
			)

			BeforeEach(func() {
				path = filepath.Join(dir, "nested", file)
				var err error
				s, err = prefs.Open(path)
				Expect(err).NotTo(HaveOccurred())
			})

			AfterEach(func() {
				Expect(s.Close()).To(Succeed())
			})

			It("should return ErrNotFound for a missing key", func() {
				_, err := s.GetString(prefs.Namespace, prefs.KeySSID)
				Expect(err).To(MatchError(prefs.ErrNotFound))
			})

			It("should overwrite an existing value", func() {
				Expect(s.PutString(prefs.Namespace, prefs.KeySSID, "home")).To(Succeed())
				Expect(s.PutString(prefs.Namespace, prefs.KeySSID, "office")).To(Succeed())

				v, err := s.GetString(prefs.Namespace, prefs.KeySSID)
				Expect(err).NotTo(HaveOccurred())
				Expect(v).To(Equal("office"))
			})

			It("should keep namespaces apart", func() {
				Expect(s.PutString("a", "k", "1")).To(Succeed())
				_, err := s.GetString("b", "k")
				Expect(err).To(MatchError(prefs.ErrNotFound))
			})

			It("should survive a reopen", func() {
				creds := types.Credentials{SSID: "home", Password: "hunter22", Account: "nasa"}
				Expect(prefs.SaveCredentials(s, creds)).To(Succeed())
				Expect(s.Close()).To(Succeed())

				var err error
				s, err = prefs.Open(path)
				Expect(err).NotTo(HaveOccurred())

				loaded, err := prefs.LoadCredentials(s)
				Expect(err).NotTo(HaveOccurred())
				Expect(loaded).To(Equal(creds))
			})

			It("should load empty credentials from a fresh store", func() {
				loaded, err := prefs.LoadCredentials(s)
				Expect(err).NotTo(HaveOccurred())
				Expect(loaded.HasNetwork()).To(BeFalse())
			})
		})
	}

	Context("json file", func() {
		It("should reject a corrupt file", func() {
			path := filepath.Join(dir, "broken.json")
			Expect(os.WriteFile(path, []byte("{not json"), 0600)).To(Succeed())

			_, err := prefs.Open(path)
			Expect(err).To(HaveOccurred())
		})

		It("should write the file with owner-only permissions", func() {
			path := filepath.Join(dir, "perm.json")
			s, err := prefs.Open(path)
			Expect(err).NotTo(HaveOccurred())
			Expect(s.PutString(prefs.Namespace, prefs.KeyPass, "secret")).To(Succeed())

			fi, err := os.Stat(path)
			Expect(err).NotTo(HaveOccurred())
			Expect(fi.Mode().Perm()).To(Equal(os.FileMode(0600)))
		})
	})
})
