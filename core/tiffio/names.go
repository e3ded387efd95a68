package tiffio

import "fmt"

// Text tags that can be addressed by name.
var tagIDs = map[string]uint16{
	"DocumentName":     TagDocumentName,
	"ImageDescription": TagImageDescription,
	"Make":             TagMake,
	"Model":            TagModel,
	"PageName":         TagPageName,
	"Software":         TagSoftware,
	"DateTime":         TagDateTime,
	"Artist":           TagArtist,
	"HostComputer":     TagHostComputer,
	"Copyright":        TagCopyright,
}

var tagNames = map[uint16]string{
	TagNewSubfileType:            "NewSubfileType",
	TagImageWidth:                "ImageWidth",
	TagImageLength:               "ImageLength",
	TagBitsPerSample:             "BitsPerSample",
	TagCompression:               "Compression",
	TagPhotometricInterpretation: "PhotometricInterpretation",
	TagStripOffsets:              "StripOffsets",
	TagSamplesPerPixel:           "SamplesPerPixel",
	TagRowsPerStrip:              "RowsPerStrip",
	TagStripByteCounts:           "StripByteCounts",
	TagTileWidth:                 "TileWidth",
	TagTileLength:                "TileLength",
	TagTileOffsets:               "TileOffsets",
	TagTileByteCounts:            "TileByteCounts",
}

func init() {
	for name, id := range tagIDs {
		tagNames[id] = name
	}
}

// TagID looks up a text tag by name.
func TagID(name string) (uint16, bool) {
	id, ok := tagIDs[name]
	return id, ok
}

// TagName returns the conventional name of a tag, or "Tag<id>".
func TagName(id uint16) string {
	if name, ok := tagNames[id]; ok {
		return name
	}
	return fmt.Sprintf("Tag%d", id)
}

// TextTags lists the tag names accepted by TagID.
func TextTags() []string {
	names := make([]string, 0, len(tagIDs))
	for name := range tagIDs {
		names = append(names, name)
	}
	return names
}
