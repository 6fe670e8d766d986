package recurrence

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	decodeResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "libmapirecur_blob_decodes_total",
		Help: "Total number of recurrence blobs decoded, by result.",
	}, []string{"result"})

	cacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "libmapirecur_decode_cache_lookups_total",
		Help: "Total number of decode cache lookups, by outcome.",
	}, []string{"outcome"})
)
