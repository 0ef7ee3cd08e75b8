package assets

import (
	"encoding/binary"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spaghettifunk/framecore/engine/assets/loaders"
	"github.com/spaghettifunk/framecore/engine/renderer/overlay"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// spirv returns a header-only module.
func spirv() []byte {
	b := make([]byte, 20)
	binary.LittleEndian.PutUint32(b, 0x07230203)
	binary.LittleEndian.PutUint32(b[4:], 0x00010000)
	return b
}

const fontDesc = `info face="Test" size=16 bold=0 italic=0 charset="" unicode=1 stretchH=100 smooth=1 aa=1 padding=0,0,0,0 spacing=1,1 outline=0
common lineHeight=18 base=14 scaleW=16 scaleH=16 pages=1 packed=0 alphaChnl=0 redChnl=0 greenChnl=0 blueChnl=0
page id=0 file="test_0.png"
chars count=1
char id=65   x=0     y=0     width=8     height=10    xoffset=0     yoffset=4     xadvance=9     page=0  chnl=15
`

func assetDir(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "shaders"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "fonts"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "shaders", "canvas.vert.spv"), spirv(), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "shaders", "broken.frag.spv"), []byte("not spirv at all...."), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "shaders", "README.md"), []byte("ignored"), 0o644))

	out, err := os.Create(filepath.Join(root, "fonts", "test_0.png"))
	require.NoError(t, err)
	require.NoError(t, png.Encode(out, image.NewNRGBA(image.Rect(0, 0, 16, 16))))
	require.NoError(t, out.Close())
	require.NoError(t, os.WriteFile(filepath.Join(root, "fonts", "test.fnt"), []byte(fontDesc), 0o644))
	return root
}

func TestInitializeIndexesKnownTypes(t *testing.T) {
	am, err := NewAssetManager()
	require.NoError(t, err)
	require.NoError(t, am.Initialize(assetDir(t), nil))
	defer am.Shutdown()

	assert.Equal(t, 3, am.Count())
	info, ok := am.Lookup(filepath.Join("shaders", "canvas.vert.spv"))
	require.True(t, ok)
	assert.Equal(t, ResourceTypeShader, info.Type)
	info, ok = am.Lookup(filepath.Join("fonts", "test.fnt"))
	require.True(t, ok)
	assert.Equal(t, ResourceTypeBitmapFont, info.Type)
	_, ok = am.Lookup(filepath.Join("shaders", "README.md"))
	assert.False(t, ok)
}

func TestLoadShader(t *testing.T) {
	am, err := NewAssetManager()
	require.NoError(t, err)
	require.NoError(t, am.Initialize(assetDir(t), nil))
	defer am.Shutdown()

	res, err := am.LoadAsset("canvas.vert.spv", ResourceTypeShader, "canvas.vert")
	require.NoError(t, err)
	assert.Equal(t, "canvas.vert", res.Name)
	assert.Equal(t, uint64(20), res.DataSize)
	assert.Equal(t, spirv(), res.Data)

	_, err = am.LoadAsset("broken.frag.spv", ResourceTypeShader, nil)
	assert.ErrorIs(t, err, loaders.ErrNotSPIRV)

	_, err = am.LoadAsset("missing.spv", ResourceTypeShader, nil)
	assert.ErrorIs(t, err, ErrAssetNotFound)

	require.NoError(t, am.UnloadAsset(ResourceTypeShader, res))
	assert.Nil(t, res.Data)
}

func TestLoadBitmapFont(t *testing.T) {
	am, err := NewAssetManager()
	require.NoError(t, err)
	require.NoError(t, am.Initialize(assetDir(t), nil))
	defer am.Shutdown()

	res, err := am.LoadAsset("test.fnt", ResourceTypeBitmapFont, nil)
	require.NoError(t, err)
	font, ok := res.Data.(*overlay.Font)
	require.True(t, ok)
	assert.Equal(t, "Test", res.Name)
	assert.Equal(t, 18, font.LineHeight)
}

func TestWatcherPicksUpNewFiles(t *testing.T) {
	root := assetDir(t)
	changes := make(chan AssetInfo, 16)
	am, err := NewAssetManager()
	require.NoError(t, err)
	require.NoError(t, am.Initialize(root, func(info AssetInfo) {
		select {
		case changes <- info:
		default:
		}
	}))

	require.NoError(t, os.WriteFile(filepath.Join(root, "shaders", "ui.frag.spv"), spirv(), 0o644))
	deadline := time.After(5 * time.Second)
	for {
		select {
		case info := <-changes:
			if info.Path == filepath.Join("shaders", "ui.frag.spv") {
				assert.Equal(t, ResourceTypeShader, info.Type)
				require.NoError(t, am.Shutdown())
				_, err := am.LoadAsset("ui.frag.spv", ResourceTypeShader, nil)
				assert.NoError(t, err)
				return
			}
		case <-deadline:
			t.Fatal("new shader was not indexed")
		}
	}
}

func TestMissingDirectoryIsNotAnError(t *testing.T) {
	am, err := NewAssetManager()
	require.NoError(t, err)
	require.NoError(t, am.Initialize(filepath.Join(t.TempDir(), "absent"), nil))
	assert.Zero(t, am.Count())
	assert.NoError(t, am.Shutdown())
	assert.NoError(t, am.Shutdown())
}
