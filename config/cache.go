package config

import (
	"path/filepath"

	"github.com/adrg/xdg"

	"github.com/xeptore/playtag/constants"
)

const cacheFilename = "catalog.db"

// DefaultCachePath returns the catalog cache location under the XDG cache
// directory, falling back to the working directory.
func DefaultCachePath() string {
	p, err := xdg.CacheFile(filepath.Join(constants.AppName, cacheFilename))
	if nil != err {
		return filepath.Join("."+constants.AppName, cacheFilename)
	}

	return p
}
