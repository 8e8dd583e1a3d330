package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMetricsOptions(t *testing.T) {
	Convey("Given metrics options", t, func() {
		Convey("When creating options", func() {
			namespaceOpt := WithNamespace("test-namespace")
			subsystemOpt := WithSubsystem("test-subsystem")
			histogramBucketsOpt := WithHistogramBuckets([]float64{0.1, 0.5, 1.0})
			metricsEnabledOpt := WithMetricsEnabled(true)
			refreshIntervalOpt := WithRefreshInterval(5 * time.Second)
			registryOpt := WithPrometheusRegistry(prometheus.NewRegistry())

			Convey("Then they should be valid functions", func() {
				So(namespaceOpt, ShouldNotBeNil)
				So(subsystemOpt, ShouldNotBeNil)
				So(histogramBucketsOpt, ShouldNotBeNil)
				So(metricsEnabledOpt, ShouldNotBeNil)
				So(refreshIntervalOpt, ShouldNotBeNil)
				So(registryOpt, ShouldNotBeNil)
			})
		})
	})
}

func TestManagerCreation(t *testing.T) {
	Convey("Given manager creation", t, func() {
		Convey("When creating with default options", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(WithPrometheusRegistry(registry))

			Convey("Then it should be created successfully", func() {
				So(manager, ShouldNotBeNil)
			})
		})

		Convey("When creating with custom options", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace("test-namespace"),
				WithSubsystem("test-subsystem"),
				WithHistogramBuckets([]float64{0.1, 0.5, 1.0}),
				WithMetricsEnabled(true),
				WithRefreshInterval(10*time.Second),
				WithPrometheusRegistry(registry),
			)

			Convey("Then it should be created successfully", func() {
				So(manager, ShouldNotBeNil)
			})
		})

		Convey("When creating with degenerate options", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace(""),
				WithSubsystem(""),
				WithHistogramBuckets(nil),
				WithRefreshInterval(-1*time.Second),
				WithPrometheusRegistry(registry),
			)

			Convey("Then the defaults are kept and creation succeeds", func() {
				So(manager, ShouldNotBeNil)
			})
		})
	})
}

func TestGlobalRegistry(t *testing.T) {
	Convey("Given the global registry", t, func() {
		Convey("Then it is available for scraping", func() {
			So(GetRegistry(), ShouldNotBeNil)
		})
	})
}

func TestMetricsRecording(t *testing.T) {
	Convey("Given metrics recording", t, func() {
		Convey("When recording batch lifecycle metrics", func() {
			Convey("Then it should record received and committed batches", func() {
				So(func() {
					RecordBatchReceived()
					RecordBatchReceived()
					RecordBatchCommitted()
				}, ShouldNotPanic)
			})

			Convey("And it should record failures by kind", func() {
				So(func() {
					RecordBatchFailed("unknown_version")
					RecordBatchFailed("model_unavailable")
					RecordBatchFailed("storage_write")
				}, ShouldNotPanic)
			})

			Convey("And it should record stage latency", func() {
				So(func() {
					RecordStageLatency("validating", 10.0)
					RecordStageLatency("deriving", 25.0)
					RecordStageLatency("scoring", 40.0)
				}, ShouldNotPanic)
			})
		})

		Convey("When recording validation metrics", func() {
			Convey("Then it should record validated record counts", func() {
				So(func() {
					RecordRecordsValidated(10, 2)
					RecordRecordsValidated(0, 0)
				}, ShouldNotPanic)
			})

			Convey("And it should record violations by rule", func() {
				So(func() {
					RecordViolation("missing_field")
					RecordViolation("invalid_format")
					RecordViolation("temporal_inconsistency")
					RecordViolation("duplicate_record")
				}, ShouldNotPanic)
			})
		})

		Convey("When recording derivation metrics", func() {
			So(func() {
				RecordFeatureVectors(25)
				RecordReferenceExclusion()
				RecordDerivationLatency(12.5)
			}, ShouldNotPanic)
		})

		Convey("When recording scoring metrics", func() {
			So(func() {
				RecordScoringLatency(100.0)
				RecordScoringError()
				RecordScoringRetry()
				RecordSegment("low")
				RecordSegment("medium")
				RecordSegment("high")
			}, ShouldNotPanic)
		})

		Convey("When recording lineage metrics", func() {
			So(func() {
				RecordLineageCommit()
				RecordLineageCommitError()
				RecordCommitLatency(5.0)
			}, ShouldNotPanic)
		})

		Convey("When recording queue metrics", func() {
			So(func() {
				UpdateQueueSize(100)
				UpdateQueueCapacity(1024)
				UpdateQueueUtilization(0.75)
				RecordQueueEnqueue()
				RecordQueueDequeue()
				RecordQueueEnqueueError("queue_full")
				RecordQueueEnqueueError("queue_closed")
			}, ShouldNotPanic)
		})

		Convey("When recording worker metrics", func() {
			So(func() {
				UpdateWorkerCount(8)
				RecordWorkerError()
				RecordProcessingLatency(50.0)
			}, ShouldNotPanic)
		})

		Convey("When recording HTTP metrics", func() {
			So(func() {
				RecordHTTPRequest("/healthz", "GET", "200")
				RecordHTTPRequest("/batches", "POST", "202")
				RecordHTTPRequestDuration("/healthz", "GET", "200", 5.0)
				RecordHTTPRequestDuration("/batches", "POST", "202", 10.0)
			}, ShouldNotPanic)
		})

		Convey("When recording system metrics", func() {
			So(func() {
				UpdateSystemMemoryUsage(1024 * 1024 * 100)
				UpdateSystemGoroutineCount(100)
			}, ShouldNotPanic)
		})
	})
}

func TestMetricsEdgeCases(t *testing.T) {
	Convey("Given metrics edge cases", t, func() {
		Convey("When recording metrics with edge values", func() {
			Convey("And using zero values", func() {
				So(func() {
					UpdateQueueSize(0)
					UpdateWorkerCount(0)
					RecordStageLatency("validating", 0.0)
					RecordHTTPRequestDuration("/test", "GET", "200", 0.0)
				}, ShouldNotPanic)
			})

			Convey("And using negative values", func() {
				So(func() {
					UpdateQueueSize(-100)
					UpdateWorkerCount(-10)
				}, ShouldNotPanic)
			})

			Convey("And using very large values", func() {
				So(func() {
					UpdateQueueSize(1000000)
					RecordFeatureVectors(10000000)
					RecordStageLatency("scoring", 30000.0)
				}, ShouldNotPanic)
			})

			Convey("And using empty strings in labels", func() {
				So(func() {
					RecordHTTPRequest("", "", "200")
					RecordHTTPRequestDuration("", "", "200", 10.0)
					RecordViolation("")
					RecordBatchFailed("")
				}, ShouldNotPanic)
			})
		})
	})
}

func TestMetricsConcurrency(t *testing.T) {
	Convey("Given metrics concurrency", t, func() {
		Convey("When recording metrics concurrently", func() {
			done := make(chan bool, 10)

			for i := 0; i < 10; i++ {
				go func() {
					for j := 0; j < 100; j++ {
						RecordBatchReceived()
						UpdateQueueSize(1000 + j)
						RecordStageLatency("scoring", float64(j))
						RecordHTTPRequest("/test", "GET", "200")
					}
					done <- true
				}()
			}

			for i := 0; i < 10; i++ {
				<-done
			}

			Convey("Then it should handle concurrent access without panics", func() {
				So(true, ShouldBeTrue) // If we get here, no panics occurred
			})
		})
	})
}
