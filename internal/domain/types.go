// Package domain provides domain models used across the application.
package domain

// PageType identifies which page of a storefront is under test.
type PageType string

const (
	PageTypeHomepage PageType = "homepage"
	PageTypeCategory PageType = "category"
	PageTypeProduct  PageType = "product"
)

// DeviceType identifies the emulation profile used by the measurement provider.
type DeviceType string

const (
	DeviceTypeMobile  DeviceType = "mobile"
	DeviceTypeDesktop DeviceType = "desktop"
)

// AllDeviceTypes is the device order used when building a test plan.
var AllDeviceTypes = []DeviceType{DeviceTypeMobile, DeviceTypeDesktop}

// GroupKey identifies one (page, device) measurement group within a batch.
type GroupKey struct {
	PageType   PageType
	DeviceType DeviceType
}
