package gpu

import (
	_ "embed"
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/rajveermalviya/go-webgpu/wgpu"

	"github.com/wbrown/img2chars"
)

//go:embed ssim.wgsl
var shaderSource string

const workgroupSize = 64

// Matcher is the GPU structure matcher. The template buffer is uploaded
// once per template-set generation and shared across batches; per-batch
// cell, result, and staging buffers live only for the call.
//
// A Matcher owns its device handle outright. Device handles are not
// designed for cross-worker sharing: concurrent batch workers should
// each create their own Matcher.
type Matcher struct {
	mu sync.Mutex

	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	device   *wgpu.Device
	queue    *wgpu.Queue
	pipeline *wgpu.ComputePipeline

	// Resident template buffer and the generation it was built from.
	tmplBuf   *wgpu.Buffer
	tmplGen   uint64
	tmplCount int
	tmplPix   int
}

var _ img2chars.StructureMatcher = (*Matcher)(nil)

// NewMatcher initializes the full wgpu chain and compiles the SSIM
// pipeline. Errors here mean the caller should run unaccelerated; they
// are never user-facing.
func NewMatcher() (*Matcher, error) {
	instance := wgpu.CreateInstance(nil)
	if instance == nil {
		return nil, fmt.Errorf("gpu: wgpu instance unavailable")
	}

	m := &Matcher{instance: instance}
	if err := m.init(); err != nil {
		m.Close()
		return nil, err
	}
	return m, nil
}

func (m *Matcher) init() error {
	adapter, err := m.instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		PowerPreference: wgpu.PowerPreference_HighPerformance,
	})
	if err != nil {
		return fmt.Errorf("gpu: requesting adapter: %w", err)
	}
	m.adapter = adapter

	device, err := adapter.RequestDevice(nil)
	if err != nil {
		return fmt.Errorf("gpu: requesting device: %w", err)
	}
	m.device = device
	m.queue = device.GetQueue()

	module, err := device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label:          "ssim-match",
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{Code: shaderSource},
	})
	if err != nil {
		return fmt.Errorf("gpu: compiling shader: %w", err)
	}
	defer module.Release()

	pipeline, err := device.CreateComputePipeline(&wgpu.ComputePipelineDescriptor{
		Label: "ssim-match",
		Compute: wgpu.ProgrammableStageDescriptor{
			Module:     module,
			EntryPoint: "main",
		},
	})
	if err != nil {
		return fmt.Errorf("gpu: creating pipeline: %w", err)
	}
	m.pipeline = pipeline

	props := adapter.GetProperties()
	slog.Debug("gpu matcher ready", "adapter", props.Name, "backend", fmt.Sprintf("%v", props.BackendType))
	return nil
}

// Close releases all GPU resources held by the matcher.
func (m *Matcher) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.tmplBuf != nil {
		m.tmplBuf.Release()
		m.tmplBuf = nil
	}
	if m.pipeline != nil {
		m.pipeline.Release()
		m.pipeline = nil
	}
	if m.device != nil {
		m.device.Release()
		m.device = nil
	}
	if m.adapter != nil {
		m.adapter.Release()
		m.adapter = nil
	}
	if m.instance != nil {
		m.instance.Release()
		m.instance = nil
	}
	m.queue = nil
}

// MatchBatch uploads the batch's flattened cell samples, dispatches one
// invocation per cell, and reads the argmax indices back through a
// mapped staging buffer. Submission and read-back complete before the
// call returns.
func (m *Matcher) MatchBatch(samples [][]float32, set *img2chars.TemplateSet) ([]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.device == nil {
		return nil, fmt.Errorf("gpu: matcher is closed")
	}
	if len(samples) == 0 {
		return nil, nil
	}
	pixelsPerCell := set.PixelsPerCell()
	for i, cell := range samples {
		if len(cell) != pixelsPerCell {
			return nil, fmt.Errorf("gpu: cell %d has %d samples, templates expect %d",
				i, len(cell), pixelsPerCell)
		}
	}

	if err := m.ensureTemplates(set); err != nil {
		return nil, err
	}

	flat := make([]float32, 0, len(samples)*pixelsPerCell)
	for _, cell := range samples {
		flat = append(flat, cell...)
	}

	cellBuf, err := m.device.CreateBufferInit(&wgpu.BufferInitDescriptor{
		Label:    "ssim-cells",
		Contents: f32Bytes(flat),
		Usage:    wgpu.BufferUsage_Storage,
	})
	if err != nil {
		return nil, fmt.Errorf("gpu: uploading cell samples: %w", err)
	}
	defer cellBuf.Release()

	paramsBuf, err := m.device.CreateBufferInit(&wgpu.BufferInitDescriptor{
		Label:    "ssim-params",
		Contents: m.paramBytes(uint32(len(samples))),
		Usage:    wgpu.BufferUsage_Uniform,
	})
	if err != nil {
		return nil, fmt.Errorf("gpu: uploading params: %w", err)
	}
	defer paramsBuf.Release()

	resultSize := uint64(len(samples) * 4)
	resultBuf, err := m.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "ssim-results",
		Size:  resultSize,
		Usage: wgpu.BufferUsage_Storage | wgpu.BufferUsage_CopySrc,
	})
	if err != nil {
		return nil, fmt.Errorf("gpu: allocating result buffer: %w", err)
	}
	defer resultBuf.Release()

	stagingBuf, err := m.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "ssim-staging",
		Size:  resultSize,
		Usage: wgpu.BufferUsage_MapRead | wgpu.BufferUsage_CopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("gpu: allocating staging buffer: %w", err)
	}
	defer stagingBuf.Release()

	layout := m.pipeline.GetBindGroupLayout(0)
	defer layout.Release()

	bindGroup, err := m.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:  "ssim-bind",
		Layout: layout,
		Entries: []wgpu.BindGroupEntry{
			{Binding: 0, Buffer: paramsBuf, Size: wgpu.WholeSize},
			{Binding: 1, Buffer: cellBuf, Size: wgpu.WholeSize},
			{Binding: 2, Buffer: m.tmplBuf, Size: wgpu.WholeSize},
			{Binding: 3, Buffer: resultBuf, Size: wgpu.WholeSize},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("gpu: creating bind group: %w", err)
	}
	defer bindGroup.Release()

	encoder, err := m.device.CreateCommandEncoder(nil)
	if err != nil {
		return nil, fmt.Errorf("gpu: creating command encoder: %w", err)
	}
	defer encoder.Release()

	pass := encoder.BeginComputePass(nil)
	pass.SetPipeline(m.pipeline)
	pass.SetBindGroup(0, bindGroup, nil)
	groups := (uint32(len(samples)) + workgroupSize - 1) / workgroupSize
	pass.DispatchWorkgroups(groups, 1, 1)
	pass.End()

	encoder.CopyBufferToBuffer(resultBuf, 0, stagingBuf, 0, resultSize)

	cmd, err := encoder.Finish(nil)
	if err != nil {
		return nil, fmt.Errorf("gpu: encoding commands: %w", err)
	}
	defer cmd.Release()

	m.queue.Submit(cmd)

	var mapStatus wgpu.BufferMapAsyncStatus
	err = stagingBuf.MapAsync(wgpu.MapMode_Read, 0, resultSize,
		func(status wgpu.BufferMapAsyncStatus) {
			mapStatus = status
		})
	if err != nil {
		return nil, fmt.Errorf("gpu: mapping staging buffer: %w", err)
	}
	m.device.Poll(true, nil)
	if mapStatus != wgpu.BufferMapAsyncStatus_Success {
		return nil, fmt.Errorf("gpu: staging map failed: %v", mapStatus)
	}

	raw := stagingBuf.GetMappedRange(0, uint(resultSize))
	results := make([]int, len(samples))
	for i := range results {
		results[i] = int(binary.LittleEndian.Uint32(raw[i*4:]))
	}
	stagingBuf.Unmap()

	return results, nil
}

// ensureTemplates uploads the template set if the resident buffer is
// missing or from an older generation. The buffer is read-only on the
// device and shared across batches.
func (m *Matcher) ensureTemplates(set *img2chars.TemplateSet) error {
	if m.tmplBuf != nil && m.tmplGen == set.Generation() &&
		m.tmplPix == set.PixelsPerCell() {
		return nil
	}
	if m.tmplBuf != nil {
		m.tmplBuf.Release()
		m.tmplBuf = nil
	}

	buf, err := m.device.CreateBufferInit(&wgpu.BufferInitDescriptor{
		Label:    "ssim-templates",
		Contents: f32Bytes(set.FlatPixels()),
		Usage:    wgpu.BufferUsage_Storage,
	})
	if err != nil {
		return fmt.Errorf("gpu: uploading templates: %w", err)
	}
	m.tmplBuf = buf
	m.tmplGen = set.Generation()
	m.tmplCount = len(set.Templates)
	m.tmplPix = set.PixelsPerCell()
	slog.Debug("gpu templates uploaded",
		"templates", m.tmplCount, "pixelsPerCell", m.tmplPix,
		"generation", m.tmplGen)
	return nil
}

// paramBytes packs the shader uniform block: three u32 counts, padding,
// and the two SSIM constants as f32.
func (m *Matcher) paramBytes(cellCount uint32) []byte {
	buf := make([]byte, 32)
	binary.LittleEndian.PutUint32(buf[0:], cellCount)
	binary.LittleEndian.PutUint32(buf[4:], uint32(m.tmplCount))
	binary.LittleEndian.PutUint32(buf[8:], uint32(m.tmplPix))
	binary.LittleEndian.PutUint32(buf[16:], math.Float32bits(float32((0.01*255)*(0.01*255))))
	binary.LittleEndian.PutUint32(buf[20:], math.Float32bits(float32((0.03*255)*(0.03*255))))
	return buf
}

// f32Bytes flattens a float32 slice into little-endian bytes for buffer
// upload.
func f32Bytes(values []float32) []byte {
	out := make([]byte, len(values)*4)
	for i, v := range values {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(v))
	}
	return out
}
