// Package thumbnail derives small preview images from the canonical raster.
// A preview is cosmetic: when the source cannot be decoded a labelled
// placeholder tile is written in its place.
package thumbnail
