package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

var HistogramBuckets = []float64{
	25, 50, 75, 100, 150, 200, 300, 400, 500,
	750, 1000, 1250, 1500, 1750, 2000,
	2500, 3000, 4000, 5000, 7500, 10000, 15000,
	20000, 30000, 45000, 60000,
}

const defaultMetricsPath = "/metrics"

// URLLabelMappingFn controls the cardinality of the "url" label; the default
// uses gin's route template so path parameters don't explode the series.
type URLLabelMappingFn func(c *gin.Context) string

// Prometheus bundles the standard HTTP request metrics plus the enrolment
// business histogram, exposed on a dedicated listen address.
type Prometheus struct {
	reqCnt *prometheus.CounterVec
	reqDur *prometheus.HistogramVec

	// EnrolmentOps counts engine operations by operation and outcome code.
	EnrolmentOps *prometheus.CounterVec

	listenAddress string
	urlLabelFn    URLLabelMappingFn
	log           *zap.SugaredLogger
}

type Options struct {
	Subsystem         string
	ListenAddress     string
	URLLabelMappingFn URLLabelMappingFn
	Logger            *zap.SugaredLogger
}

func NewPrometheus(opts Options) *Prometheus {
	p := &Prometheus{
		listenAddress: opts.ListenAddress,
		urlLabelFn:    opts.URLLabelMappingFn,
		log:           opts.Logger,
	}
	if p.urlLabelFn == nil {
		p.urlLabelFn = func(c *gin.Context) string {
			if fp := c.FullPath(); fp != "" {
				return fp
			}
			return c.Request.URL.Path
		}
	}

	p.reqCnt = prometheus.NewCounterVec(prometheus.CounterOpts{
		Subsystem: opts.Subsystem,
		Name:      "req_total",
		Help:      "How many HTTP requests processed, partitioned by status code and HTTP method.",
	}, []string{"code", "method", "url"})
	p.reqDur = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Subsystem: opts.Subsystem,
		Name:      "req_dur_ms",
		Help:      "The HTTP request latencies in milliseconds.",
		Buckets:   HistogramBuckets,
	}, []string{"code", "method", "url"})
	p.EnrolmentOps = prometheus.NewCounterVec(prometheus.CounterOpts{
		Subsystem: opts.Subsystem,
		Name:      "enrolment_ops_total",
		Help:      "Enrolment engine operations, partitioned by operation and result code.",
	}, []string{"op", "result"})

	for _, c := range []prometheus.Collector{p.reqCnt, p.reqDur, p.EnrolmentOps} {
		if err := prometheus.Register(c); err != nil && p.log != nil {
			p.log.Errorf("metric could not be registered in Prometheus, err=%v", err)
		}
	}
	return p
}

// Use attaches the middleware to the engine and starts the metrics listener
// when a dedicated address is configured.
func (p *Prometheus) Use(e *gin.Engine) {
	e.Use(p.HandlerFunc())
	if p.listenAddress != "" {
		r := gin.New()
		r.GET(defaultMetricsPath, gin.WrapH(promhttp.Handler()))
		go func() {
			if err := r.Run(p.listenAddress); err != nil && p.log != nil {
				p.log.Errorf("metrics listener stopped: %v", err)
			}
		}()
		return
	}
	e.GET(defaultMetricsPath, gin.WrapH(promhttp.Handler()))
}

func (p *Prometheus) HandlerFunc() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.URL.Path == defaultMetricsPath {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		status := strconv.Itoa(c.Writer.Status())
		url := p.urlLabelFn(c)
		p.reqDur.WithLabelValues(status, c.Request.Method, url).Observe(float64(time.Since(start).Milliseconds()))
		p.reqCnt.WithLabelValues(status, c.Request.Method, url).Inc()
	}
}
