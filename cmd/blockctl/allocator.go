package main

import (
	"bytes"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"

	"github.com/joshuapare/blockmem/heap/alloc"
	"github.com/joshuapare/blockmem/internal/logger"
)

// newAllocator builds an allocator from the effective config. The registry
// is nil unless metrics are enabled.
func newAllocator(withMetrics bool) (*alloc.BlockAllocator, *prometheus.Registry, error) {
	ac := cfg.AllocatorConfig()
	ac.Logger = logger.L

	var reg *prometheus.Registry
	if withMetrics || cfg.Allocator.Metrics {
		reg = prometheus.NewRegistry()
		ac.Metrics = alloc.NewMetrics(reg)
	}

	a, err := alloc.New(ac)
	if err != nil {
		return nil, nil, errors.Wrap(err, "create allocator")
	}
	return a, reg, nil
}

// metricsText renders every metric in reg in the prometheus text format.
func metricsText(reg *prometheus.Registry) (string, error) {
	families, err := reg.Gather()
	if err != nil {
		return "", errors.Wrap(err, "gather metrics")
	}
	var buf bytes.Buffer
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(&buf, mf); err != nil {
			return "", errors.Wrap(err, "encode metrics")
		}
	}
	return buf.String(), nil
}
