package perf

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	jobmetrics "github.com/armature-build/armature/internal/jobs"
)

func TestJobThroughputAndReliability(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := jobmetrics.NewMetrics(reg)

	// Decision stamping is a single conditional write; it should be fast
	// and almost always succeed.
	for i := 0; i < 60; i++ {
		tracker := metrics.Track("invoice:decision")
		time.Sleep(2 * time.Millisecond)
		if err := tracker.End(nil); err != nil {
			t.Fatalf("unexpected error ending decision tracker: %v", err)
		}
	}

	// Digest recomputes scan both parent collections; slower but bounded.
	for i := 0; i < 15; i++ {
		tracker := metrics.Track("reconciliation:digest")
		time.Sleep(20 * time.Millisecond)
		if err := tracker.End(nil); err != nil {
			t.Fatalf("unexpected error ending digest tracker: %v", err)
		}
	}

	// Inject a couple of failures to ensure alerts would fire.
	for i := 0; i < 3; i++ {
		tracker := metrics.Track("invoice:decision")
		time.Sleep(2 * time.Millisecond)
		if err := tracker.End(errors.New("version conflict")); err == nil {
			t.Fatal("expected error to propagate")
		}
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	success := metricValue(t, families, "armature_jobs_total", map[string]string{"job": "invoice:decision", "status": "success"})
	failure := metricValue(t, families, "armature_jobs_total", map[string]string{"job": "invoice:decision", "status": "failure"})
	if success+failure == 0 {
		t.Fatal("no decision job executions recorded")
	}
	ratio := success / (success + failure)
	if ratio < 0.9 {
		t.Fatalf("decision job success ratio too low: %f", ratio)
	}

	digestDuration := histogramMean(t, families, "armature_job_duration_seconds", map[string]string{"job": "reconciliation:digest"})
	if digestDuration > 2.0 {
		t.Fatalf("digest duration above budget: %f", digestDuration)
	}

	decisionDuration := histogramMean(t, families, "armature_job_duration_seconds", map[string]string{"job": "invoice:decision"})
	if decisionDuration > 0.5 {
		t.Fatalf("decision duration above budget: %f", decisionDuration)
	}
}

func metricValue(t *testing.T, families []*dto.MetricFamily, name string, labels map[string]string) float64 {
	t.Helper()
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, metric := range fam.GetMetric() {
			if hasLabels(metric, labels) {
				if fam.GetType() == dto.MetricType_COUNTER {
					return metric.GetCounter().GetValue()
				}
				if fam.GetType() == dto.MetricType_GAUGE {
					return metric.GetGauge().GetValue()
				}
			}
		}
	}
	t.Fatalf("metric %s with labels %v not found", name, labels)
	return 0
}

func histogramMean(t *testing.T, families []*dto.MetricFamily, name string, labels map[string]string) float64 {
	t.Helper()
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, metric := range fam.GetMetric() {
			if hasLabels(metric, labels) {
				hist := metric.GetHistogram()
				if hist == nil || hist.GetSampleCount() == 0 {
					t.Fatalf("histogram %s missing samples", name)
				}
				return hist.GetSampleSum() / float64(hist.GetSampleCount())
			}
		}
	}
	t.Fatalf("histogram %s with labels %v not found", name, labels)
	return 0
}

func hasLabels(metric *dto.Metric, labels map[string]string) bool {
	for _, lp := range metric.GetLabel() {
		if val, ok := labels[lp.GetName()]; ok {
			if lp.GetValue() != val {
				return false
			}
		}
	}
	for key := range labels {
		found := false
		for _, lp := range metric.GetLabel() {
			if lp.GetName() == key {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
