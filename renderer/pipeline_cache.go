package renderer

import (
	"bytes"
	"encoding/binary"
	"io/fs"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"
)

const (
	pipelineCacheHeaderVersionOne = 1
	pipelineCacheHeaderSize       = 16 + 16
)

// pipelineCacheHeader is the fixed prefix of the blob returned by the driver:
// header length, header version, vendor ID, device ID and the device's
// pipeline cache UUID.
type pipelineCacheHeader struct {
	Length   uint32
	Version  uint32
	VendorID uint32
	DeviceID uint32
	UUID     uuid.UUID
}

func parsePipelineCacheHeader(data []byte) (pipelineCacheHeader, error) {
	var header pipelineCacheHeader
	if len(data) < pipelineCacheHeaderSize {
		return header, errors.Newf("pipeline cache is %d bytes, shorter than its header", len(data))
	}

	err := binary.Read(bytes.NewReader(data), common.ByteOrder, &header)
	return header, errors.Wrap(err, "read pipeline cache header")
}

// mismatch returns a description of why the header cannot seed a cache on
// identity, or "" when it can.
func (h pipelineCacheHeader) mismatch(identity deviceIdentity) string {
	switch {
	case h.Length < pipelineCacheHeaderSize:
		return "bad header length"
	case h.Version != pipelineCacheHeaderVersionOne:
		return "unsupported header version"
	case h.VendorID != identity.vendorID:
		return "vendor ID mismatch"
	case h.DeviceID != identity.deviceID:
		return "device ID mismatch"
	case h.UUID != identity.pipelineCacheUUID:
		return "pipeline cache UUID mismatch"
	}
	return ""
}

// loadPipelineCacheData returns the saved cache at path if it was written by
// the same driver and device. A stale file is removed so the next save
// repopulates it.
func loadPipelineCacheData(path string, identity deviceIdentity) []byte {
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		Logger().Warn("pipeline cache unreadable", "path", path, "err", err)
		return nil
	}

	header, err := parsePipelineCacheHeader(data)
	reason := ""
	if err != nil {
		reason = err.Error()
	} else {
		reason = header.mismatch(identity)
	}

	if reason != "" {
		Logger().Warn("discarding pipeline cache", "path", path, "reason", reason)
		_ = os.Remove(path)
		return nil
	}

	Logger().Info("pipeline cache loaded", "path", path, "bytes", len(data))
	return data
}

type pipelineCache struct {
	cache core1_0.PipelineCache
	path  string
}

func (c *pipelineCache) handle() *core1_0.PipelineCache {
	if c == nil || !c.cache.Initialized() {
		return nil
	}
	return &c.cache
}

func (d *deviceContext) createPipelineCache(path string, scope *releaseScope) (*pipelineCache, error) {
	cache, _, err := d.deviceDriver.CreatePipelineCache(nil, core1_0.PipelineCacheCreateInfo{
		InitialData: loadPipelineCacheData(path, d.identity),
	})
	if err != nil {
		return nil, errors.Wrap(err, "create pipeline cache")
	}

	result := &pipelineCache{cache: cache, path: path}
	scope.own("pipeline cache", func() {
		d.savePipelineCache(result)
		d.deviceDriver.DestroyPipelineCache(result.cache, nil)
	})
	return result, nil
}

func (d *deviceContext) savePipelineCache(cache *pipelineCache) {
	if cache.path == "" {
		return
	}

	data, _, err := d.deviceDriver.GetPipelineCacheData(cache.cache)
	if err != nil {
		Logger().Warn("read pipeline cache data", "err", err)
		return
	}

	if err := os.WriteFile(cache.path, data, 0o644); err != nil {
		Logger().Warn("write pipeline cache", "path", cache.path, "err", err)
		return
	}

	Logger().Info("pipeline cache saved", "path", cache.path, "bytes", len(data))
}
