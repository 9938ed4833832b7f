package netcdf

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
)

// Format is the on-disk container of a NetCDF file.
type Format string

const (
	FormatClassic Format = "netcdf-classic"
	// FormatNetCDF4 is the HDF5-based container used by most current
	// satellite products.
	FormatNetCDF4 Format = "netcdf4"
)

// ErrUnknownFormat is returned for files that carry neither signature.
var ErrUnknownFormat = errors.New("not a netcdf file")

var (
	classicMagic = []byte("CDF")
	hdf5Magic    = []byte("\x89HDF\r\n\x1a\n")
)

// hdf5Offsets are the positions the HDF5 superblock may start at when a user
// block precedes it.
var hdf5Offsets = []int64{0, 512, 1024, 2048, 4096}

// DetectFormat sniffs the container signature of path.
func DetectFormat(path string) (Format, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	buf := make([]byte, len(hdf5Magic))
	for _, off := range hdf5Offsets {
		n, err := f.ReadAt(buf, off)
		if err != nil && !errors.Is(err, io.EOF) {
			return "", fmt.Errorf("sniff %s: %w", path, err)
		}
		if n < len(buf) {
			if off == 0 && n >= len(classicMagic)+1 && isClassic(buf[:n]) {
				return FormatClassic, nil
			}
			break
		}
		if off == 0 && isClassic(buf) {
			return FormatClassic, nil
		}
		if bytes.Equal(buf, hdf5Magic) {
			return FormatNetCDF4, nil
		}
	}
	return "", fmt.Errorf("%s: %w", path, ErrUnknownFormat)
}

// isClassic matches "CDF" followed by version 1, 2 or 5.
func isClassic(b []byte) bool {
	if !bytes.HasPrefix(b, classicMagic) {
		return false
	}
	switch b[len(classicMagic)] {
	case 1, 2, 5:
		return true
	}
	return false
}
