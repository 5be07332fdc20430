package main

import (
	"github.com/daceq/daceq-go/internal/devicetest"
	"github.com/daceq/daceq-go/pkg/protocol/moondrop"
	"github.com/daceq/daceq-go/pkg/protocol/qudelix"
	"github.com/daceq/daceq-go/pkg/protocol/tanchjim"
	"github.com/daceq/daceq-go/pkg/transport"
)

// demoEnumerator wires one simulated device per family so every
// command can be exercised without hardware.
func demoEnumerator() *devicetest.Enumerator {
	return &devicetest.Enumerator{
		Infos: []transport.DeviceInfo{
			{
				VendorID: tanchjim.VendorID,
				Product:  "TANCHJIM Bunny DSP (demo)",
				Path:     "demo/tanchjim",
			},
			{
				VendorID: moondrop.VendorIDs[0],
				Product:  "MOONDROP May DSP (demo)",
				Path:     "demo/moondrop",
			},
			{
				VendorID:  qudelix.VendorID,
				ProductID: qudelix.ProductID,
				Product:   "Qudelix-5K USB DAC (demo)",
				UsagePage: qudelix.UsagePage,
				Path:      "demo/qudelix",
			},
		},
		Transports: map[string]*devicetest.Transport{
			"demo/tanchjim": devicetest.NewTransport(devicetest.NewTanchjimFirmware()),
			"demo/moondrop": devicetest.NewTransport(devicetest.NewMoondropFirmware()),
			"demo/qudelix":  devicetest.NewTransport(devicetest.NewQudelixFirmware()),
		},
	}
}
