package vulkan

import (
	"testing"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/framecore/engine/renderer/gpu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSafeStrings(t *testing.T) {
	assert.Equal(t, "\x00", VulkanSafeString(""))
	assert.Equal(t, "main\x00", VulkanSafeString("main"))
	assert.Equal(t, "main\x00", VulkanSafeString("main\x00"))

	in := []string{"a", "b\x00"}
	assert.Equal(t, []string{"a\x00", "b\x00"}, VulkanSafeStrings(in))
	assert.Equal(t, "a", in[0])

	assert.Equal(t, "VK_LAYER", cString([]byte{'V', 'K', '_', 'L', 'A', 'Y', 'E', 'R', 0, 'x'}))
	assert.Equal(t, 3, FindFirstZeroInByteArray([]byte("abc")))
}

func TestResults(t *testing.T) {
	assert.True(t, VulkanResultIsSuccess(vk.Success))
	assert.True(t, VulkanResultIsSuccess(vk.Incomplete))
	assert.False(t, VulkanResultIsSuccess(vk.ErrorDeviceLost))
	assert.Equal(t, "VK_ERROR_DEVICE_LOST", VulkanResultString(vk.ErrorDeviceLost))

	assert.NoError(t, check(vk.Success, "vkQueueSubmit"))
	err := check(vk.ErrorOutOfDeviceMemory, "vkAllocateMemory")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "vkAllocateMemory failed with VK_ERROR_OUT_OF_DEVICE_MEMORY")
}

func TestFormats(t *testing.T) {
	assert.Equal(t, vk.FormatR8g8b8a8Unorm, vkFormat(gpu.FormatRGBA8))
	assert.Equal(t, vk.FormatD32Sfloat, vkFormat(gpu.FormatD32))
	assert.Equal(t, vk.FormatUndefined, vkFormat(gpu.FormatUndefined))

	f, err := attributeFormat(3)
	require.NoError(t, err)
	assert.Equal(t, vk.FormatR32g32b32Sfloat, f)
	_, err = attributeFormat(5)
	assert.Error(t, err)
}

func TestLayouts(t *testing.T) {
	assert.Equal(t, vk.ImageLayoutUndefined, layoutFor(gpu.TargetUninitialized, false))
	assert.Equal(t, vk.ImageLayoutColorAttachmentOptimal, layoutFor(gpu.TargetRenderTarget, false))
	assert.Equal(t, vk.ImageLayoutDepthStencilAttachmentOptimal, layoutFor(gpu.TargetRenderTarget, true))
	assert.Equal(t, vk.ImageLayoutShaderReadOnlyOptimal, layoutFor(gpu.TargetShaderResource, false))
	assert.Equal(t, vk.ImageLayoutDepthStencilReadOnlyOptimal, layoutFor(gpu.TargetShaderResource, true))

	stage, access := accessFor(gpu.TargetUninitialized, false)
	assert.Equal(t, vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit), stage)
	assert.Zero(t, access)
}

func TestCacheKeys(t *testing.T) {
	a := keyFor([]gpu.Format{gpu.FormatRGBA8}, gpu.FormatD32)
	b := keyFor([]gpu.Format{gpu.FormatRGBA8}, gpu.FormatD32)
	c := keyFor([]gpu.Format{gpu.FormatRGBA8, gpu.FormatRGBA8}, gpu.FormatD32)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)

	k := framebufferKeyFor(gpu.Attachments{Colour: []gpu.TargetHandle{4, 5}, Depth: 9, Size: gpu.Size{Width: 8, Height: 8}})
	assert.True(t, k.uses(5))
	assert.True(t, k.uses(9))
	assert.False(t, k.uses(6))
}

func TestDebugCallbackMatchesLoaderSignature(t *testing.T) {
	var cb vk.DebugReportCallbackFunc = dbgCallbackFunc
	assert.NotNil(t, cb)
}

func TestShaderModuleInfo(t *testing.T) {
	code := make([]byte, 20)
	code[0] = 0x03
	info, err := shaderModuleInfo(code)
	require.NoError(t, err)
	assert.Equal(t, uint64(20), info.CodeSize)
	require.Len(t, info.PCode, 5)
	assert.Equal(t, uint32(0x03), info.PCode[0]&0xff)

	_, err = shaderModuleInfo(code[:6])
	assert.Error(t, err)
	_, err = shaderModuleInfo(nil)
	assert.Error(t, err)
}
