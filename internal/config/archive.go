package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// ConfigPathEnvVar names the optional YAML file with archive settings.
const ConfigPathEnvVar = "CONFIG_PATH"

// envPrefix scopes the environment overrides for archive settings.
const envPrefix = "ARCHIVE_"

// Archive holds the settings of the data pipeline itself.
type Archive struct {
	Region  Region  `koanf:"region"`
	Folders Folders `koanf:"folders"`
	Dates   Dates   `koanf:"dates"`
	DHW     DHW     `koanf:"dhw"`
	Ingest  Ingest  `koanf:"ingest"`
}

// Region is the bounding box cropped out of every raw grid.
type Region struct {
	MinLat float64 `koanf:"min_lat" validate:"gte=-90,lte=90"`
	MaxLat float64 `koanf:"max_lat" validate:"gte=-90,lte=90,gtfield=MinLat"`
	MinLon float64 `koanf:"min_lon" validate:"gte=-180,lte=360"`
	MaxLon float64 `koanf:"max_lon" validate:"gte=-180,lte=360,gtfield=MinLon"`
}

type Folders struct {
	Archive  string `koanf:"archive" validate:"required"`
	Scratch  string `koanf:"scratch" validate:"required"`
	Baseline string `koanf:"baseline" validate:"required"`
}

// Dates bounds the archive. An empty End means yesterday.
type Dates struct {
	Start string `koanf:"start" validate:"required"`
	End   string `koanf:"end"`
}

type DHW struct {
	KelvinOffset   float64 `koanf:"kelvin_offset" validate:"gt=0"`
	BaselineOffset float64 `koanf:"baseline_offset"`
	BaselineVar    string  `koanf:"baseline_var" validate:"required"`
	WeekNormalize  bool    `koanf:"week_normalize"`
	WindowDays     int     `koanf:"window_days" validate:"min=1"`
	Rebuild        bool    `koanf:"rebuild"`
}

type Ingest struct {
	RawVar          string        `koanf:"raw_var" validate:"required"`
	Source          string        `koanf:"source"`
	Workers         int           `koanf:"workers" validate:"min=1,max=64"`
	Download        bool          `koanf:"download"`
	DownloadCommand string        `koanf:"download_command" validate:"required_if=Download true"`
	DownloadTimeout time.Duration `koanf:"download_timeout" validate:"gte=0"`
	DownloadRetries int           `koanf:"download_retries" validate:"gte=0,lte=10"`
}

func defaultArchive() *Archive {
	return &Archive{
		// Bonaire and Klein Bonaire.
		Region: Region{MinLat: 11.95, MaxLat: 12.35, MinLon: -68.5, MaxLon: -68.15},
		Folders: Folders{
			Archive:  "data/archive",
			Scratch:  "data/download",
			Baseline: "data/hrcs_mmm.nc",
		},
		Dates: Dates{Start: "2002-06-01"},
		DHW: DHW{
			KelvinOffset:   273.15,
			BaselineOffset: 1.0,
			BaselineVar:    "variable",
			WindowDays:     84,
		},
		Ingest: Ingest{
			RawVar:          "analysed_sst",
			Source:          "MUR-JPL-L4-GLOB-v4.1",
			Workers:         4,
			Download:        true,
			DownloadCommand: "podaac-data-downloader -c MUR-JPL-L4-GLOB-v4.1 -d {dir} --start-date {date}T20:00:00Z --end-date {date}T20:00:00Z",
			DownloadTimeout: 30 * time.Minute,
			DownloadRetries: 2,
		},
	}
}

// loadArchive layers struct defaults, the YAML file named by CONFIG_PATH
// (if any) and ARCHIVE_* environment variables, then validates the result.
func loadArchive() (*Archive, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultArchive(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load archive defaults: %w", err)
	}

	if path := os.Getenv(ConfigPathEnvVar); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("load archive environment: %w", err)
	}

	a := &Archive{}
	if err := k.Unmarshal("", a); err != nil {
		return nil, fmt.Errorf("unmarshal archive config: %w", err)
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	return a, nil
}

var sections = []string{"region", "folders", "dates", "dhw", "ingest"}

// envKey maps ARCHIVE_REGION_MIN_LAT to region.min_lat. Variables outside a
// known section are ignored.
func envKey(s string) string {
	key := strings.ToLower(strings.TrimPrefix(s, envPrefix))
	for _, sec := range sections {
		if rest, ok := strings.CutPrefix(key, sec+"_"); ok && rest != "" {
			return sec + "." + rest
		}
	}
	return ""
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field ranges and cross-field constraints.
func (a *Archive) Validate() error {
	if err := validate.Struct(a); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid archive config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid archive config: %w", err)
	}
	return nil
}
