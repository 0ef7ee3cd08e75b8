package vulkan

import (
	"errors"
	"fmt"
	"sync"
	"unsafe"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/framecore/engine/core"
	"github.com/spaghettifunk/framecore/engine/renderer/gpu"
)

var (
	ErrUnknownResource = errors.New("unknown resource")
	ErrUnsatisfiedWait = errors.New("semaphore wait can never be satisfied")
	ErrForeignEncoder  = errors.New("encoder was not created by this device")
	errNoMemoryType    = errors.New("no suitable memory type")
)

const DefaultTableCapacity = 16

var (
	_ gpu.Device  = (*Device)(nil)
	_ gpu.Encoder = (*Encoder)(nil)
)

type Options struct {
	AppName        string
	FramesInFlight int
	// Debug enables the validation layer when it is installed.
	Debug bool
	// ProcAddr is vkGetInstanceProcAddr as handed out by the windowing
	// layer. Nil loads the system Vulkan loader.
	ProcAddr unsafe.Pointer
	// TableCapacity is the number of storage buffers a table can hold.
	TableCapacity int
}

type VulkanBuffer struct {
	Handle vk.Buffer
	Memory vk.DeviceMemory
	Desc   gpu.BufferDesc
	Mapped []byte
}

type semaphore struct {
	name  string
	value uint64
}

type frameSlot struct {
	pool    vk.CommandPool
	buffers []vk.CommandBuffer
	used    int
	fence   *VulkanFence
}

// Device renders offscreen on a single graphics queue. Submissions execute
// in queue order, so a semaphore wait is satisfied by submitting after the
// signalling pass; the image barriers recorded by the passes order the
// memory accesses. Semaphore values are tracked on the host to reject
// waits that could never be met.
//
// Framebuffers are only touched from the render goroutine.
type Device struct {
	opts    Options
	context *VulkanContext
	locks   *VulkanLockPool

	mu         sync.RWMutex
	next       uint32
	buffers    map[gpu.BufferHandle]*VulkanBuffer
	targets    map[gpu.TargetHandle]*VulkanImage
	pipelines  map[gpu.PipelineHandle]*VulkanPipeline
	tables     map[gpu.TableHandle]*VulkanTable
	semaphores map[gpu.SemaphoreHandle]*semaphore

	setLayout    vk.DescriptorSetLayout
	layout       vk.PipelineLayout
	renderpasses map[renderpassKey]vk.RenderPass
	framebuffers map[framebufferKey]*VulkanFramebuffer

	frames []*frameSlot
}

func New(opts Options) (*Device, error) {
	if opts.FramesInFlight <= 0 {
		opts.FramesInFlight = 2
	}
	if opts.TableCapacity <= 0 {
		opts.TableCapacity = DefaultTableCapacity
	}
	context, err := newContext(opts)
	if err != nil {
		core.LogError(err.Error())
		return nil, err
	}
	d := &Device{
		opts:         opts,
		context:      context,
		locks:        NewVulkanLockPool(),
		buffers:      make(map[gpu.BufferHandle]*VulkanBuffer),
		targets:      make(map[gpu.TargetHandle]*VulkanImage),
		pipelines:    make(map[gpu.PipelineHandle]*VulkanPipeline),
		tables:       make(map[gpu.TableHandle]*VulkanTable),
		semaphores:   make(map[gpu.SemaphoreHandle]*semaphore),
		renderpasses: make(map[renderpassKey]vk.RenderPass),
		framebuffers: make(map[framebufferKey]*VulkanFramebuffer),
	}
	if err := d.createLayouts(); err != nil {
		d.Destroy()
		return nil, err
	}
	for i := 0; i < opts.FramesInFlight; i++ {
		slot, err := d.newFrameSlot()
		if err != nil {
			d.Destroy()
			return nil, err
		}
		d.frames = append(d.frames, slot)
	}
	core.LogInfo("Vulkan device ready on %s with %d frames in flight.", context.DeviceName, opts.FramesInFlight)
	return d, nil
}

func (d *Device) newFrameSlot() (*frameSlot, error) {
	poolCreateInfo := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		QueueFamilyIndex: d.context.GraphicsQueueIndex,
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateTransientBit),
	}
	var pool vk.CommandPool
	if err := check(vk.CreateCommandPool(d.context.LogicalDevice, &poolCreateInfo, d.context.Allocator, &pool), "vkCreateCommandPool"); err != nil {
		return nil, err
	}
	fence, err := NewFence(d.context)
	if err != nil {
		vk.DestroyCommandPool(d.context.LogicalDevice, pool, d.context.Allocator)
		return nil, err
	}
	return &frameSlot{pool: pool, fence: fence}, nil
}

func (d *Device) Name() string {
	return "vulkan:" + d.context.DeviceName
}

func (d *Device) FramesInFlight() int {
	return d.opts.FramesInFlight
}

// handle must be called with mu held.
func (d *Device) handle() uint32 {
	d.next++
	return d.next
}

func (d *Device) buffer(h gpu.BufferHandle) (*VulkanBuffer, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	b, ok := d.buffers[h]
	if !ok {
		return nil, fmt.Errorf("buffer %d: %w", h, ErrUnknownResource)
	}
	return b, nil
}

func (d *Device) target(h gpu.TargetHandle) (*VulkanImage, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	t, ok := d.targets[h]
	if !ok {
		return nil, fmt.Errorf("target %d: %w", h, ErrUnknownResource)
	}
	return t, nil
}

func (d *Device) pipeline(h gpu.PipelineHandle) (*VulkanPipeline, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	p, ok := d.pipelines[h]
	if !ok {
		return nil, fmt.Errorf("pipeline %d: %w", h, ErrUnknownResource)
	}
	return p, nil
}

func (d *Device) table(h gpu.TableHandle) (*VulkanTable, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	t, ok := d.tables[h]
	if !ok {
		return nil, fmt.Errorf("table %d: %w", h, ErrUnknownResource)
	}
	return t, nil
}

func (d *Device) createBuffer(desc gpu.BufferDesc, usage vk.BufferUsageFlags, memoryFlags vk.MemoryPropertyFlags) (*VulkanBuffer, error) {
	if desc.Size == 0 {
		return nil, fmt.Errorf("buffer %s has no size: %w", desc.Name, core.ErrInvalidConfig)
	}
	bufferCreateInfo := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(desc.Size),
		Usage:       usage,
		SharingMode: vk.SharingModeExclusive,
	}
	b := &VulkanBuffer{Desc: desc}
	var handle vk.Buffer
	if err := check(vk.CreateBuffer(d.context.LogicalDevice, &bufferCreateInfo, d.context.Allocator, &handle), "vkCreateBuffer"); err != nil {
		return nil, err
	}
	b.Handle = handle

	var requirements vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(d.context.LogicalDevice, b.Handle, &requirements)
	requirements.Deref()
	memory, err := allocate(d.context, requirements, memoryFlags)
	if err != nil {
		b.destroy(d.context)
		return nil, fmt.Errorf("buffer %s: %w", desc.Name, err)
	}
	b.Memory = memory
	if err := check(vk.BindBufferMemory(d.context.LogicalDevice, b.Handle, b.Memory, 0), "vkBindBufferMemory"); err != nil {
		b.destroy(d.context)
		return nil, err
	}
	return b, nil
}

func (b *VulkanBuffer) destroy(context *VulkanContext) {
	if b.Mapped != nil {
		vk.UnmapMemory(context.LogicalDevice, b.Memory)
		b.Mapped = nil
	}
	if b.Handle != nil {
		vk.DestroyBuffer(context.LogicalDevice, b.Handle, context.Allocator)
		b.Handle = nil
	}
	if b.Memory != nil {
		vk.FreeMemory(context.LogicalDevice, b.Memory, context.Allocator)
		b.Memory = nil
	}
}

func (d *Device) register(b *VulkanBuffer) gpu.BufferHandle {
	d.mu.Lock()
	defer d.mu.Unlock()
	h := gpu.BufferHandle(d.handle())
	d.buffers[h] = b
	return h
}

// CreateStagingBuffer returns a host visible, coherent buffer that stays
// mapped until it is destroyed.
func (d *Device) CreateStagingBuffer(desc gpu.BufferDesc) (gpu.BufferHandle, []byte, error) {
	b, err := d.createBuffer(desc,
		vk.BufferUsageFlags(vk.BufferUsageTransferSrcBit),
		vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit|vk.MemoryPropertyHostCoherentBit))
	if err != nil {
		return 0, nil, err
	}
	var ptr unsafe.Pointer
	if err := check(vk.MapMemory(d.context.LogicalDevice, b.Memory, 0, vk.DeviceSize(desc.Size), 0, &ptr), "vkMapMemory"); err != nil {
		b.destroy(d.context)
		return 0, nil, err
	}
	b.Mapped = unsafe.Slice((*byte)(ptr), desc.Size)
	return d.register(b), b.Mapped, nil
}

func (d *Device) CreateDeviceBuffer(desc gpu.BufferDesc) (gpu.BufferHandle, error) {
	usage := vk.BufferUsageFlags(vk.BufferUsageTransferDstBit)
	if desc.Usage&gpu.BufferUsageVertex != 0 {
		usage |= vk.BufferUsageFlags(vk.BufferUsageVertexBufferBit)
	}
	if desc.Usage&gpu.BufferUsageIndex != 0 {
		usage |= vk.BufferUsageFlags(vk.BufferUsageIndexBufferBit)
	}
	if desc.Usage&gpu.BufferUsageUniform != 0 {
		usage |= vk.BufferUsageFlags(vk.BufferUsageUniformBufferBit)
	}
	if desc.Usage&gpu.BufferUsageStorage != 0 {
		usage |= vk.BufferUsageFlags(vk.BufferUsageStorageBufferBit)
	}
	b, err := d.createBuffer(desc, usage, vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit))
	if err != nil {
		return 0, err
	}
	return d.register(b), nil
}

func (d *Device) DestroyBuffer(h gpu.BufferHandle) {
	d.mu.Lock()
	b, ok := d.buffers[h]
	delete(d.buffers, h)
	d.mu.Unlock()
	if ok {
		b.destroy(d.context)
	}
}

func (d *Device) CreateTarget(desc gpu.TargetDesc) (gpu.TargetHandle, error) {
	if desc.Size.Empty() {
		return 0, fmt.Errorf("target %s has size %s: %w", desc.Name, desc.Size, core.ErrInvalidConfig)
	}
	img, err := newImage(d.context, desc)
	if err != nil {
		return 0, fmt.Errorf("target %s: %w", desc.Name, err)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	h := gpu.TargetHandle(d.handle())
	d.targets[h] = img
	return h, nil
}

func (d *Device) DestroyTarget(h gpu.TargetHandle) {
	d.mu.Lock()
	img, ok := d.targets[h]
	delete(d.targets, h)
	d.mu.Unlock()
	if !ok {
		return
	}
	d.forgetFramebuffers(h)
	img.destroy(d.context)
}

func (d *Device) CreatePipeline(desc gpu.PipelineDesc) (gpu.PipelineHandle, error) {
	p, err := d.newPipeline(desc)
	if err != nil {
		core.LogError(err.Error())
		return 0, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	h := gpu.PipelineHandle(d.handle())
	d.pipelines[h] = p
	return h, nil
}

func (d *Device) DestroyPipeline(h gpu.PipelineHandle) {
	d.mu.Lock()
	p, ok := d.pipelines[h]
	delete(d.pipelines, h)
	d.mu.Unlock()
	if ok {
		p.destroy(d.context)
	}
}

func (d *Device) CreateTable(desc gpu.TableDesc) (gpu.TableHandle, error) {
	d.mu.RLock()
	t, err := d.newTable(desc)
	d.mu.RUnlock()
	if err != nil {
		return 0, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	h := gpu.TableHandle(d.handle())
	d.tables[h] = t
	return h, nil
}

func (d *Device) DestroyTable(h gpu.TableHandle) {
	d.mu.Lock()
	t, ok := d.tables[h]
	delete(d.tables, h)
	d.mu.Unlock()
	if ok {
		t.destroy(d.context)
	}
}

func (d *Device) CreateSemaphore(name string) (gpu.SemaphoreHandle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	h := gpu.SemaphoreHandle(d.handle())
	d.semaphores[h] = &semaphore{name: name}
	return h, nil
}

func (d *Device) DestroySemaphore(h gpu.SemaphoreHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.semaphores, h)
}

func (d *Device) BeginCommands(slot int, label string) (gpu.Encoder, error) {
	if slot < 0 || slot >= len(d.frames) {
		return nil, fmt.Errorf("vulkan: slot %d out of range [0,%d)", slot, len(d.frames))
	}
	f := d.frames[slot]
	if f.used == len(f.buffers) {
		allocateInfo := vk.CommandBufferAllocateInfo{
			SType:              vk.StructureTypeCommandBufferAllocateInfo,
			CommandPool:        f.pool,
			Level:              vk.CommandBufferLevelPrimary,
			CommandBufferCount: 1,
		}
		buffers := make([]vk.CommandBuffer, 1)
		if err := check(vk.AllocateCommandBuffers(d.context.LogicalDevice, &allocateInfo, buffers), "vkAllocateCommandBuffers"); err != nil {
			return nil, err
		}
		f.buffers = append(f.buffers, buffers[0])
	}
	handle := f.buffers[f.used]
	f.used++

	beginInfo := vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit),
	}
	if err := check(vk.BeginCommandBuffer(handle, &beginInfo), "vkBeginCommandBuffer"); err != nil {
		return nil, err
	}
	return &Encoder{device: d, slot: slot, label: label, handle: handle}, nil
}

// Submit ends the encoder and queues it. Semaphore values are tracked on the
// host only: every pass submits to the single graphics queue, so queue order
// already runs a signalling pass before any pass that waits on it. Waits are
// checked against the last value signalled on the host.
func (d *Device) Submit(sub gpu.Submission) error {
	enc, ok := sub.Encoder.(*Encoder)
	if !ok || enc.device != d {
		return ErrForeignEncoder
	}
	if err := check(vk.EndCommandBuffer(enc.handle), "vkEndCommandBuffer"); err != nil {
		return err
	}
	if enc.err != nil {
		return enc.err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	for _, w := range sub.Waits {
		s, ok := d.semaphores[w.Semaphore]
		if !ok {
			return fmt.Errorf("vulkan: %s waits on semaphore %d: %w", enc.label, w.Semaphore, ErrUnknownResource)
		}
		if w.Value > s.value {
			return fmt.Errorf("vulkan: %s waits on %s=%d, current %d: %w", enc.label, s.name, w.Value, s.value, ErrUnsatisfiedWait)
		}
	}

	var fence vk.Fence
	f := d.frames[enc.slot]
	if sub.Last {
		fence = f.fence.Handle
	}
	submitInfo := vk.SubmitInfo{
		SType:              vk.StructureTypeSubmitInfo,
		CommandBufferCount: 1,
		PCommandBuffers:    []vk.CommandBuffer{enc.handle},
	}
	err := d.locks.SafeCall(QueueManagement, func() error {
		return check(vk.QueueSubmit(d.context.GraphicsQueue, 1, []vk.SubmitInfo{submitInfo}, fence), "vkQueueSubmit")
	})
	if err != nil {
		return fmt.Errorf("vulkan: submitting %s: %w", enc.label, err)
	}
	if sub.Last {
		f.fence.Pending = true
	}
	if s, ok := d.semaphores[sub.Signal.Semaphore]; ok && sub.Signal.Value > s.value {
		s.value = sub.Signal.Value
	}
	return nil
}

// WaitFrame blocks on the slot fence and recycles the slot's command
// buffers.
func (d *Device) WaitFrame(slot int) error {
	if slot < 0 || slot >= len(d.frames) {
		return fmt.Errorf("vulkan: slot %d out of range [0,%d)", slot, len(d.frames))
	}
	f := d.frames[slot]
	if !f.fence.Pending && f.used > 0 {
		// an aborted frame left submissions without the fence
		if err := d.WaitIdle(); err != nil {
			return err
		}
	}
	if err := f.fence.Wait(d.context); err != nil {
		core.LogError(err.Error())
		return err
	}
	if err := check(vk.ResetCommandPool(d.context.LogicalDevice, f.pool, 0), "vkResetCommandPool"); err != nil {
		return err
	}
	f.used = 0
	return nil
}

func (d *Device) WaitIdle() error {
	return d.locks.SafeCall(QueueManagement, func() error {
		return check(vk.QueueWaitIdle(d.context.GraphicsQueue), "vkQueueWaitIdle")
	})
}

func (d *Device) Destroy() {
	if d.context == nil {
		return
	}
	if d.context.LogicalDevice != nil {
		vk.DeviceWaitIdle(d.context.LogicalDevice)
	}

	d.mu.Lock()
	if n := len(d.buffers) + len(d.targets) + len(d.pipelines) + len(d.tables); n > 0 {
		core.LogWarn("vulkan: destroying device with %d live resources", n)
	}
	for h, t := range d.tables {
		t.destroy(d.context)
		delete(d.tables, h)
	}
	for h, p := range d.pipelines {
		p.destroy(d.context)
		delete(d.pipelines, h)
	}
	for key, fb := range d.framebuffers {
		vk.DestroyFramebuffer(d.context.LogicalDevice, fb.Handle, d.context.Allocator)
		delete(d.framebuffers, key)
	}
	for h, img := range d.targets {
		img.destroy(d.context)
		delete(d.targets, h)
	}
	for h, b := range d.buffers {
		b.destroy(d.context)
		delete(d.buffers, h)
	}
	d.semaphores = make(map[gpu.SemaphoreHandle]*semaphore)
	d.mu.Unlock()

	d.destroyRenderpasses()
	d.destroyLayouts()
	for _, f := range d.frames {
		f.fence.Destroy(d.context)
		vk.DestroyCommandPool(d.context.LogicalDevice, f.pool, d.context.Allocator)
	}
	d.frames = nil
	d.context.destroy()
	d.context = nil
	core.LogInfo("Vulkan device destroyed.")
}
