package stats

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

type FileStats struct {
	ReadBytes        uint64 `json:"read-bytes"`
	WriteBytes       uint64 `json:"write-bytes"`
	DeleteCount      uint64 `json:"delete-count"`
	RenameCount      uint64 `json:"rename-count"`
	TruncateCount    uint64 `json:"truncate-count"`
	OpenCount        uint64 `json:"open-count"`
	XattrListCount   uint64 `json:"xattr-list"`
	XattrReadCount   uint64 `json:"xattr-read"`
	XattrWriteCount  uint64 `json:"xattr-write"`
	XattrDeleteCount uint64 `json:"xattr-delete"`
}

type Stats struct {
	ReadBytes        uint64 `json:"read-bytes"`
	WriteBytes       uint64 `json:"write-bytes"`
	OpenCount        uint64 `json:"open-count"`
	DeleteCount      uint64 `json:"delete"`
	RenameCount      uint64 `json:"rename"`
	TruncateCount    uint64 `json:"truncate"`
	MkdirCount       uint64 `json:"mkdir"`
	XattrListCount   uint64 `json:"xattr-list"`
	XattrReadCount   uint64 `json:"xattr-read"`
	XattrWriteCount  uint64 `json:"xattr-write"`
	XattrDeleteCount uint64 `json:"xattr-delete"`
	ErrorCount       uint64 `json:"errors"`

	Files map[string]FileStats
}

var (
	// Mutex to protect concurrent access to stats
	statsMutex sync.RWMutex
	stats      = &Stats{Files: make(map[string]FileStats)}

	registry   = prometheus.NewRegistry()
	operations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fusent",
			Name:      "operations_total",
			Help:      "Total number of volume operations",
		},
		[]string{"operation"},
	)
	transferred = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fusent",
			Name:      "bytes_total",
			Help:      "Bytes moved through read and write",
		},
		[]string{"direction"},
	)
	failures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fusent",
			Name:      "errors_total",
			Help:      "Failed requests by kind and native status",
		},
		[]string{"request", "status"},
	)
)

func init() {
	registry.MustRegister(operations, transferred, failures)
}

// update applies fn to the totals and, when name is set, to name's entry.
func update(name string, fn func(*Stats, *FileStats)) {
	statsMutex.Lock()
	defer statsMutex.Unlock()

	var f FileStats
	if name != "" {
		f = stats.Files[name]
	}
	fn(stats, &f)
	if name != "" {
		stats.Files[name] = f
	}
}

func AddReadBytes(name string, cnt uint64) {
	transferred.WithLabelValues("read").Add(float64(cnt))
	update(name, func(s *Stats, f *FileStats) {
		s.ReadBytes += cnt
		f.ReadBytes += cnt
	})
}

func AddWriteBytes(name string, cnt uint64) {
	transferred.WithLabelValues("write").Add(float64(cnt))
	update(name, func(s *Stats, f *FileStats) {
		s.WriteBytes += cnt
		f.WriteBytes += cnt
	})
}

func AddOpen(name string) {
	operations.WithLabelValues("open").Inc()
	update(name, func(s *Stats, f *FileStats) {
		s.OpenCount++
		f.OpenCount++
	})
}

func AddDelete(name string) {
	operations.WithLabelValues("delete").Inc()
	update(name, func(s *Stats, f *FileStats) {
		s.DeleteCount++
		f.DeleteCount++
	})
}

func AddRename(name string) {
	operations.WithLabelValues("rename").Inc()
	update(name, func(s *Stats, f *FileStats) {
		s.RenameCount++
		f.RenameCount++
	})
}

func AddTruncate(name string) {
	operations.WithLabelValues("truncate").Inc()
	update(name, func(s *Stats, f *FileStats) {
		s.TruncateCount++
		f.TruncateCount++
	})
}

func AddMkdir(name string) {
	operations.WithLabelValues("mkdir").Inc()
	update("", func(s *Stats, _ *FileStats) {
		s.MkdirCount++
	})
}

func AddXattrList(name string) {
	operations.WithLabelValues("xattr_list").Inc()
	update(name, func(s *Stats, f *FileStats) {
		s.XattrListCount++
		f.XattrListCount++
	})
}

func AddXattrRead(name string) {
	operations.WithLabelValues("xattr_read").Inc()
	update(name, func(s *Stats, f *FileStats) {
		s.XattrReadCount++
		f.XattrReadCount++
	})
}

func AddXattrWrite(name string) {
	operations.WithLabelValues("xattr_write").Inc()
	update(name, func(s *Stats, f *FileStats) {
		s.XattrWriteCount++
		f.XattrWriteCount++
	})
}

func AddXattrDelete(name string) {
	operations.WithLabelValues("xattr_delete").Inc()
	update(name, func(s *Stats, f *FileStats) {
		s.XattrDeleteCount++
		f.XattrDeleteCount++
	})
}

// AddError counts a failed request by its kind and native status name.
func AddError(request, status string) {
	failures.WithLabelValues(request, status).Inc()
	update("", func(s *Stats, _ *FileStats) {
		s.ErrorCount++
	})
}

// Snapshot returns a copy of the current counters.
func Snapshot() Stats {
	statsMutex.RLock()
	defer statsMutex.RUnlock()

	s := *stats
	s.Files = make(map[string]FileStats, len(stats.Files))
	for k, v := range stats.Files {
		s.Files[k] = v
	}
	return s
}

// Reset clears the JSON counters. Prometheus counters only ever grow.
func Reset() {
	statsMutex.Lock()
	defer statsMutex.Unlock()
	stats = &Stats{Files: make(map[string]FileStats)}
}

// Handler serves the JSON counters at "/", a reset at "/reset" and the
// Prometheus metrics at "/metrics".
func Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", statsHandler)
	mux.HandleFunc("/reset", resetHandler)
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	return mux
}

// StatServer serves Handler on addr until ctx is cancelled.
func StatServer(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(sctx)
	}()

	log.Infof("stats server at %s", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func statsHandler(w http.ResponseWriter, r *http.Request) {
	s := Snapshot()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(&s)
}

func resetHandler(w http.ResponseWriter, r *http.Request) {
	Reset()
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Stats reset successfully!"))
}
