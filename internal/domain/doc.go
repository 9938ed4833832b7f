// Package domain models daily sea-surface-temperature (SST) grids and the
// Degree Heating Weeks (DHW) thermal-stress metric derived from them.
//
// # Data Source
//
// Daily SST analyses come from the GHRSST Level 4 MUR global product
// (dataset MUR-JPL-L4-GLOB-v4.1, distributed by PO.DAAC). Each raw file is a
// NetCDF grid with "lat", "lon", an optional "time" axis of length one, and
// "analysed_sst" in Kelvin, usually packed as int16 with scale_factor,
// add_offset and _FillValue attributes. Land cells carry the fill value.
//
// # Grid Conventions
//
// Grids are row-major: rows are latitudes, columns are longitudes. Canonical
// daily SST records store both axes ascending. DHW records store latitude
// descending (north at the top row) because the dashboard renders rows as
// image rows. The flip happens exactly once, when a DHW grid is written.
//
// Coordinates from different producers disagree in noise digits, so the
// climatology baseline is matched onto the SST grid by rounding both axes
// to two decimals and locating the baseline extrema ([Align]). Two grids
// are never assumed to share indexing.
//
// # Degree Heating Weeks
//
// For a day D with SST records for every day D-83 .. D:
//
//	excess(d) = max(0, SST(d) - threshold)     per cell
//	DHW(D)    = sum over d in [D-83, D] of excess(d)
//
// The threshold is the maximum-monthly-mean climatology plus a configured
// offset. The sum is optionally divided by seven for week-normalized units
// and rounded to two decimals. Non-finite cells (land) stay non-finite.
//
// # Dates
//
// Dates are UTC calendar days formatted YYYY-MM-DD, which is also the file
// name of every daily record. [NormalizeDate] accepts a few legacy layouts
// and maps anything else to [NoDate], whose string form "nd" never names a
// record.
package domain
