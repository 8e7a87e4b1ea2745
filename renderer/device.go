package renderer

import (
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/vkngwrapper/core/v3"
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/ext_debug_utils"
	"github.com/vkngwrapper/extensions/v3/khr_portability_enumeration"
	"github.com/vkngwrapper/extensions/v3/khr_portability_subset"
	"github.com/vkngwrapper/extensions/v3/khr_surface"
	"github.com/vkngwrapper/extensions/v3/khr_swapchain"
)

var validationLayers = []string{"VK_LAYER_KHRONOS_validation"}
var deviceExtensions = []string{khr_swapchain.ExtensionName}

type queueFamilyIndices struct {
	GraphicsFamily *int
	PresentFamily  *int
}

func (i *queueFamilyIndices) IsComplete() bool {
	return i.GraphicsFamily != nil && i.PresentFamily != nil
}

// distinct returns the queue families to create queues on, graphics first.
func (i *queueFamilyIndices) distinct() []int {
	families := []int{*i.GraphicsFamily}
	if *i.PresentFamily != *i.GraphicsFamily {
		families = append(families, *i.PresentFamily)
	}
	return families
}

type deviceIdentity struct {
	name              string
	vendorID          uint32
	deviceID          uint32
	pipelineCacheUUID uuid.UUID
	maxAnisotropy     float32
}

// deviceContext is everything from the instance down to the logical device and
// its queues. It is immutable once bootstrap returns.
type deviceContext struct {
	globalDriver   core1_0.GlobalDriver
	instanceDriver core1_0.CoreInstanceDriver
	deviceDriver   core1_0.CoreDeviceDriver

	debugDriver        ext_debug_utils.ExtensionDriver
	debugMessenger     ext_debug_utils.DebugUtilsMessenger
	surfaceExtension   khr_surface.ExtensionDriver
	surface            khr_surface.Surface
	swapchainExtension khr_swapchain.ExtensionDriver

	physicalDevice core1_0.PhysicalDevice
	identity       deviceIdentity
	queueFamilies  queueFamilyIndices
	depthFormat    core1_0.Format

	graphicsQueue core1_0.Queue
	presentQueue  core1_0.Queue
}

// bootstrapDevice builds the device context. Every handle it creates is
// registered with scope, so a failure part way leaves nothing unowned.
func bootstrapDevice(window Window, opts Options, scope *releaseScope) (*deviceContext, error) {
	dev := &deviceContext{}

	var err error
	dev.globalDriver, err = core.CreateDriverFromProcAddr(window.ProcAddr())
	if err != nil {
		return nil, errors.Wrap(err, "load vulkan")
	}

	if err := dev.createInstance(window, opts, scope); err != nil {
		return nil, err
	}
	if err := dev.setupDebugMessenger(opts, scope); err != nil {
		return nil, err
	}
	if err := dev.createSurface(window, scope); err != nil {
		return nil, err
	}
	if err := dev.pickPhysicalDevice(); err != nil {
		return nil, err
	}
	if err := dev.createLogicalDevice(scope); err != nil {
		return nil, err
	}

	dev.depthFormat, err = dev.findDepthFormat()
	if err != nil {
		return nil, err
	}

	Logger().Info("device selected",
		"device", dev.identity.name,
		"graphicsFamily", *dev.queueFamilies.GraphicsFamily,
		"presentFamily", *dev.queueFamilies.PresentFamily,
		"depthFormat", dev.depthFormat)

	return dev, nil
}

func (d *deviceContext) createInstance(window Window, opts Options, scope *releaseScope) error {
	instanceOptions := core1_0.InstanceCreateInfo{
		ApplicationName:    opts.ApplicationName,
		ApplicationVersion: common.CreateVersion(1, 0, 0),
		EngineName:         "modelviewer",
		EngineVersion:      common.CreateVersion(1, 0, 0),
		APIVersion:         common.Vulkan1_2,
	}

	extensions, _, err := d.globalDriver.AvailableExtensions()
	if err != nil {
		return errors.Wrap(err, "enumerate instance extensions")
	}

	for _, ext := range window.RequiredInstanceExtensions() {
		if _, hasExt := extensions[ext]; !hasExt {
			return errors.Wrapf(ErrMissingExtension, "instance extension %s", ext)
		}
		instanceOptions.EnabledExtensionNames = append(instanceOptions.EnabledExtensionNames, ext)
	}

	if opts.EnableValidation {
		instanceOptions.EnabledExtensionNames = append(instanceOptions.EnabledExtensionNames, ext_debug_utils.ExtensionName)
	}

	if _, enumerationSupported := extensions[khr_portability_enumeration.ExtensionName]; enumerationSupported {
		instanceOptions.EnabledExtensionNames = append(instanceOptions.EnabledExtensionNames, khr_portability_enumeration.ExtensionName)
		instanceOptions.Flags |= khr_portability_enumeration.InstanceCreateEnumeratePortability
	}

	if opts.EnableValidation {
		layers, _, err := d.globalDriver.AvailableLayers()
		if err != nil {
			return errors.Wrap(err, "enumerate instance layers")
		}

		for _, layer := range validationLayers {
			if _, hasValidation := layers[layer]; !hasValidation {
				return errors.Wrapf(ErrMissingLayer, "validation layer %s (install the Vulkan SDK)", layer)
			}
			instanceOptions.EnabledLayerNames = append(instanceOptions.EnabledLayerNames, layer)
		}

		instanceOptions.Next = debugMessengerOptions()
	}

	d.instanceDriver, _, err = d.globalDriver.CreateInstance(nil, instanceOptions)
	if err != nil {
		return errors.Wrap(err, "create instance")
	}
	scope.own("instance", func() { d.instanceDriver.DestroyInstance(nil) })

	return nil
}

func debugMessengerOptions() ext_debug_utils.DebugUtilsMessengerCreateInfo {
	return ext_debug_utils.DebugUtilsMessengerCreateInfo{
		MessageSeverity: ext_debug_utils.SeverityError | ext_debug_utils.SeverityWarning,
		MessageType:     ext_debug_utils.TypeGeneral | ext_debug_utils.TypeValidation | ext_debug_utils.TypePerformance,
		UserCallback:    logDebug,
	}
}

func logDebug(msgType ext_debug_utils.DebugUtilsMessageTypeFlags, severity ext_debug_utils.DebugUtilsMessageSeverityFlags, data *ext_debug_utils.DebugUtilsMessengerCallbackData) bool {
	if severity&ext_debug_utils.SeverityError != 0 {
		Logger().Error(data.Message, "type", msgType)
	} else {
		Logger().Warn(data.Message, "type", msgType)
	}
	return false
}

func (d *deviceContext) setupDebugMessenger(opts Options, scope *releaseScope) error {
	if !opts.EnableValidation {
		return nil
	}

	var err error
	d.debugDriver = ext_debug_utils.CreateExtensionDriverFromCoreDriver(d.instanceDriver)
	d.debugMessenger, _, err = d.debugDriver.CreateDebugUtilsMessenger(nil, debugMessengerOptions())
	if err != nil {
		return errors.Wrap(err, "create debug messenger")
	}
	scope.own("debug messenger", func() { d.debugDriver.DestroyDebugUtilsMessenger(d.debugMessenger, nil) })

	return nil
}

func (d *deviceContext) createSurface(window Window, scope *releaseScope) error {
	d.surfaceExtension = khr_surface.CreateExtensionDriverFromCoreDriver(d.instanceDriver)
	surface, err := window.CreateSurface(d.instanceDriver.Instance(), d.surfaceExtension)
	if err != nil {
		return errors.Wrap(err, "create surface")
	}

	d.surface = surface
	scope.own("surface", func() { d.surfaceExtension.DestroySurface(d.surface, nil) })
	return nil
}

func (d *deviceContext) pickPhysicalDevice() error {
	physicalDevices, _, err := d.instanceDriver.EnumeratePhysicalDevices()
	if err != nil {
		return errors.Wrap(err, "enumerate physical devices")
	}

	for _, device := range physicalDevices {
		indices, suitable := d.isDeviceSuitable(device)
		if !suitable {
			continue
		}

		properties, err := d.instanceDriver.GetPhysicalDeviceProperties(device)
		if err != nil {
			return errors.Wrap(err, "get physical device properties")
		}

		d.physicalDevice = device
		d.queueFamilies = indices
		d.identity = deviceIdentity{
			name:              properties.DeviceName,
			vendorID:          uint32(properties.VendorID),
			deviceID:          uint32(properties.DeviceID),
			pipelineCacheUUID: properties.PipelineCacheUUID,
			maxAnisotropy:     float32(properties.Limits.MaxSamplerAnisotropy),
		}
		return nil
	}

	return ErrNoSuitableDevice
}

func (d *deviceContext) isDeviceSuitable(device core1_0.PhysicalDevice) (queueFamilyIndices, bool) {
	indices, err := d.findQueueFamilies(device)
	if err != nil || !indices.IsComplete() {
		return indices, false
	}

	if !d.checkDeviceExtensionSupport(device) {
		return indices, false
	}

	support, err := d.querySwapchainSupport(device)
	if err != nil || len(support.Formats) == 0 || len(support.PresentModes) == 0 {
		return indices, false
	}

	features := d.instanceDriver.GetPhysicalDeviceFeatures(device)
	return indices, features.SamplerAnisotropy
}

func (d *deviceContext) checkDeviceExtensionSupport(device core1_0.PhysicalDevice) bool {
	extensions, _, err := d.instanceDriver.EnumerateDeviceExtensionProperties(device)
	if err != nil {
		return false
	}

	for _, extension := range deviceExtensions {
		if _, hasExtension := extensions[extension]; !hasExtension {
			return false
		}
	}

	return true
}

func (d *deviceContext) findQueueFamilies(device core1_0.PhysicalDevice) (queueFamilyIndices, error) {
	indices := queueFamilyIndices{}
	queueFamilies := d.instanceDriver.GetPhysicalDeviceQueueFamilyProperties(device)

	for queueFamilyIdx, queueFamily := range queueFamilies {
		if indices.GraphicsFamily == nil && (queueFamily.QueueFlags&core1_0.QueueGraphics) != 0 {
			indices.GraphicsFamily = new(int)
			*indices.GraphicsFamily = queueFamilyIdx
		}

		supported, _, err := d.surfaceExtension.GetPhysicalDeviceSurfaceSupport(d.surface, device, queueFamilyIdx)
		if err != nil {
			return indices, err
		}

		if supported && indices.PresentFamily == nil {
			indices.PresentFamily = new(int)
			*indices.PresentFamily = queueFamilyIdx
		}

		if indices.IsComplete() {
			break
		}
	}

	return indices, nil
}

func (d *deviceContext) createLogicalDevice(scope *releaseScope) error {
	var queueFamilyOptions []core1_0.DeviceQueueCreateInfo
	queuePriority := float32(1.0)
	for _, queueFamily := range d.queueFamilies.distinct() {
		queueFamilyOptions = append(queueFamilyOptions, core1_0.DeviceQueueCreateInfo{
			QueueFamilyIndex: queueFamily,
			QueuePriorities:  []float32{queuePriority},
		})
	}

	var extensionNames []string
	extensionNames = append(extensionNames, deviceExtensions...)

	extensions, _, err := d.instanceDriver.EnumerateDeviceExtensionProperties(d.physicalDevice)
	if err != nil {
		return errors.Wrap(err, "enumerate device extensions")
	}

	if _, supported := extensions[khr_portability_subset.ExtensionName]; supported {
		extensionNames = append(extensionNames, khr_portability_subset.ExtensionName)
	}

	d.deviceDriver, _, err = d.instanceDriver.CreateDevice(d.physicalDevice, nil, core1_0.DeviceCreateInfo{
		QueueCreateInfos: queueFamilyOptions,
		EnabledFeatures: &core1_0.PhysicalDeviceFeatures{
			SamplerAnisotropy: true,
		},
		EnabledExtensionNames: extensionNames,
	})
	if err != nil {
		return errors.Wrap(err, "create logical device")
	}
	scope.own("logical device", func() { d.deviceDriver.DestroyDevice(nil) })

	d.swapchainExtension = khr_swapchain.CreateExtensionDriverFromCoreDriver(d.deviceDriver)
	d.graphicsQueue = d.deviceDriver.GetQueue(*d.queueFamilies.GraphicsFamily, 0)
	d.presentQueue = d.deviceDriver.GetQueue(*d.queueFamilies.PresentFamily, 0)
	return nil
}

func (d *deviceContext) findSupportedFormat(formats []core1_0.Format, tiling core1_0.ImageTiling, features core1_0.FormatFeatureFlags) (core1_0.Format, bool) {
	for _, format := range formats {
		props := d.instanceDriver.GetPhysicalDeviceFormatProperties(d.physicalDevice, format)

		if tiling == core1_0.ImageTilingLinear && (props.LinearTilingFeatures&features) == features {
			return format, true
		} else if tiling == core1_0.ImageTilingOptimal && (props.OptimalTilingFeatures&features) == features {
			return format, true
		}
	}

	return 0, false
}

func (d *deviceContext) findDepthFormat() (core1_0.Format, error) {
	format, found := d.findSupportedFormat(
		[]core1_0.Format{core1_0.FormatD32SignedFloat, core1_0.FormatD32SignedFloatS8UnsignedInt, core1_0.FormatD24UnsignedNormalizedS8UnsignedInt},
		core1_0.ImageTilingOptimal,
		core1_0.FormatFeatureDepthStencilAttachment)
	if !found {
		return 0, ErrNoDepthFormat
	}
	return format, nil
}

func hasStencilComponent(format core1_0.Format) bool {
	return format == core1_0.FormatD32SignedFloatS8UnsignedInt || format == core1_0.FormatD24UnsignedNormalizedS8UnsignedInt
}

func (d *deviceContext) findMemoryType(typeFilter uint32, properties core1_0.MemoryPropertyFlags) (int, error) {
	memProperties := d.instanceDriver.GetPhysicalDeviceMemoryProperties(d.physicalDevice)
	for i, memoryType := range memProperties.MemoryTypes {
		typeBit := uint32(1 << i)

		if (typeFilter&typeBit) != 0 && (memoryType.PropertyFlags&properties) == properties {
			return i, nil
		}
	}

	return 0, errors.Wrapf(ErrNoMemoryType, "type filter %x, properties %s", typeFilter, properties)
}

// waitIdle blocks until no queue of the device has outstanding work.
func (d *deviceContext) waitIdle() (idleToken, error) {
	if _, err := d.deviceDriver.DeviceWaitIdle(); err != nil {
		return idleToken{}, errors.Wrap(err, "wait for device idle")
	}
	return idleToken{}, nil
}
