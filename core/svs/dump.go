package svs

import (
	"fmt"
	"io"
	"os"

	"github.com/google/tiff"
	"github.com/google/tiff/bigtiff"
)

// Dump writes every IFD field of the file at path to w, as decoded by an
// independent TIFF parser. It is a second opinion for View and for
// checking the result of a strip.
func Dump(path string, w io.Writer, full bool) error {
	r, err := os.Open(path)
	if err != nil {
		return err
	}
	defer r.Close()

	tiff.SetTiffFieldPrintFullFieldValue(full)

	t, err := tiff.Parse(r, nil, nil)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	kind := "classic TIFF"
	if t.Version() == bigtiff.Version {
		kind = "BigTIFF"
	}
	fmt.Fprintf(w, "Version: %d (%s)\n", t.Version(), kind)
	fmt.Fprintf(w, "Byte Order: %s\n\n", endianString(t.Order()))

	for i, ifd := range t.IFDs() {
		fmt.Fprintf(w, "IFD %d:\n", i)
		for _, f := range ifd.Fields() {
			fmt.Fprintf(w, "%s\n", f)
		}
	}
	return nil
}

func endianString(magic string) string {
	if magic == tiff.MagicBigEndian {
		return "big endian"
	}
	return "little endian"
}
