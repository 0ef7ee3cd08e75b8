package loaders

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spaghettifunk/framecore/engine/renderer/overlay"
)

type BitmapFontFileType int

const (
	BITMAP_FONT_FILE_TYPE_NOT_FOUND BitmapFontFileType = iota
	BITMAP_FONT_FILE_TYPE_FNT
)

type SupportedBitmapFontFileType struct {
	Extension  string
	BitmapType BitmapFontFileType
}

// BitmapFontLoader turns an AngelCode descriptor into an overlay font. The
// path may omit the extension, supported ones are tried in order.
type BitmapFontLoader struct{}

var supportedFileTypes = []SupportedBitmapFontFileType{
	{Extension: ".fnt", BitmapType: BITMAP_FONT_FILE_TYPE_FNT},
}

func (fl *BitmapFontLoader) Load(path string, params interface{}) (*Resource, error) {
	fullPath, bitmapType := fl.resolve(path)
	switch bitmapType {
	case BITMAP_FONT_FILE_TYPE_FNT:
		font, err := overlay.LoadBMFont(fullPath)
		if err != nil {
			return nil, err
		}
		name, _ := params.(string)
		if name == "" {
			name = font.Face
		}
		return &Resource{
			Name:     name,
			FullPath: fullPath,
			DataSize: uint64(font.GlyphCount()),
			Data:     font,
		}, nil
	}
	return nil, fmt.Errorf("unable to find bitmap font of supported type at '%s': %w", path, os.ErrNotExist)
}

func (fl *BitmapFontLoader) resolve(path string) (string, BitmapFontFileType) {
	ext := filepath.Ext(path)
	for _, t := range supportedFileTypes {
		if ext == t.Extension {
			return path, t.BitmapType
		}
	}
	for _, t := range supportedFileTypes {
		candidate := path + t.Extension
		if _, err := os.Stat(candidate); err == nil {
			return candidate, t.BitmapType
		}
	}
	return path, BITMAP_FONT_FILE_TYPE_NOT_FOUND
}

func (fl *BitmapFontLoader) Unload(res *Resource) error {
	res.Data = nil
	res.DataSize = 0
	return nil
}
