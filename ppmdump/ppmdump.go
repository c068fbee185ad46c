// Package ppmdump writes debug-only dumps of a decoded GIF frame: a
// PPM image (for visual inspection) or the raw palette indices. Neither
// path participates in recompression; both are grounded on
// GifImage::dumpPpm/dumpIndices, kept here as a standalone adapter
// rather than inlined into gifcodec.
package ppmdump

import (
	"fmt"
	"io"

	"flexigo/gifcodec"
	"flexigo/lzw"
)

// WritePPM writes frame as a binary (P6) PPM image to w, mapping each
// pixel index through palette (the image's global color map, with any
// of frame's local color map entries overlaid on top). Only supports
// frames that cover the whole image, matching the original's
// restriction.
func WritePPM(w io.Writer, img *gifcodec.Image, frame gifcodec.Frame) error {
	if uint16(frame.Width) != img.Width || uint16(frame.Height) != img.Height {
		return &lzw.Error{Kind: lzw.ErrMisuse, Offset: -1, Msg: "PPM dump is not supported for partial frames"}
	}

	palette := make([]gifcodec.Color, len(img.GlobalColorMap))
	copy(palette, img.GlobalColorMap)
	for i, c := range frame.LocalColorMap {
		if i < len(palette) {
			palette[i] = c
		} else {
			palette = append(palette, c)
		}
	}

	if _, err := fmt.Fprintf(w, "P6\n%d %d\n255\n", img.Width, img.Height); err != nil {
		return err
	}

	rgb := make([]byte, 0, len(frame.Pixels)*3)
	for _, idx := range frame.Pixels {
		if int(idx) >= len(palette) {
			return &lzw.Error{Kind: lzw.ErrMalformed, Offset: -1, Msg: "pixel index out of range of the color map"}
		}
		c := palette[idx]
		rgb = append(rgb, c.R, c.G, c.B)
	}

	_, err := w.Write(rgb)
	return err
}

// WriteIndices writes frame's raw palette indices to w verbatim, one
// byte per pixel, in the frame's native row order.
func WriteIndices(w io.Writer, img *gifcodec.Image, frame gifcodec.Frame) error {
	if uint16(frame.Width) != img.Width || uint16(frame.Height) != img.Height {
		return &lzw.Error{Kind: lzw.ErrMisuse, Offset: -1, Msg: "index dump is not supported for partial frames"}
	}
	_, err := w.Write(frame.Pixels)
	return err
}
