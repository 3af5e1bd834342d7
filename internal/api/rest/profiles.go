package rest

import (
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/KevinKickass/OpenMachineSensors/internal/devices"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// VendorIndex is the optional index.yaml of a vendor directory below a
// profile search path.
type VendorIndex struct {
	Vendor      string `yaml:"vendor" json:"vendor"`
	Description string `yaml:"description" json:"description,omitempty"`
	Website     string `yaml:"website" json:"website,omitempty"`
}

type vendorEntry struct {
	VendorIndex
	Profiles []string `json:"profiles"`
}

// GET /api/v1/profiles
func (s *Server) listProfiles(c *gin.Context) {
	loader := s.lm.SensorManager().Loader()

	names, err := loader.Catalog()
	if err != nil {
		s.writeError(c, "Failed to scan profiles", err)
		return
	}

	vendors := make(map[string]*vendorEntry)
	for _, name := range names {
		dir := "."
		if i := strings.Index(name, "/"); i > 0 {
			dir = name[:i]
		}
		entry, ok := vendors[dir]
		if !ok {
			entry = &vendorEntry{VendorIndex: s.readVendorIndex(loader.SearchPaths(), dir)}
			vendors[dir] = entry
		}
		entry.Profiles = append(entry.Profiles, name)
	}

	response := make([]*vendorEntry, 0, len(vendors))
	for _, entry := range vendors {
		response = append(response, entry)
	}
	sort.Slice(response, func(i, j int) bool {
		return response[i].Vendor < response[j].Vendor
	})

	c.JSON(http.StatusOK, gin.H{
		"vendors":  response,
		"profiles": names,
		"count":    len(names),
	})
}

// readVendorIndex returns the first index.yaml found for dir. Without one
// the directory name is the vendor.
func (s *Server) readVendorIndex(searchPaths []string, dir string) VendorIndex {
	for _, searchPath := range searchPaths {
		indexPath := filepath.Join(searchPath, dir, devices.VendorIndexFile)

		data, err := os.ReadFile(indexPath)
		if err != nil {
			continue
		}

		var index VendorIndex
		if err := yaml.Unmarshal(data, &index); err != nil {
			s.logger.Warn("Failed to parse vendor index",
				zap.String("path", indexPath),
				zap.Error(err))
			continue
		}
		if index.Vendor == "" {
			index.Vendor = dir
		}
		return index
	}
	return VendorIndex{Vendor: dir}
}

// GET /api/v1/profiles/*name
func (s *Server) getProfile(c *gin.Context) {
	name := strings.Trim(c.Param("name"), "/")

	profile, err := s.lm.SensorManager().Loader().Load(name)
	if err != nil {
		s.writeError(c, "Profile not available", err)
		return
	}

	c.JSON(http.StatusOK, profile)
}
