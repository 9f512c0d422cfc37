package monitor

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/GSB-WEB/adcsim"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Monitor turns server traffic and conversions into Prometheus metrics.
type Monitor struct {
	registry *prometheus.Registry

	Requests         *prometheus.CounterVec
	Conversions      *prometheus.CounterVec
	DigitalCode      *prometheus.GaugeVec
	ElectricalValue  *prometheus.GaugeVec
	EngineeringValue *prometheus.GaugeVec
}

// NewMonitor registers the metrics on registry.
func NewMonitor(registry *prometheus.Registry) *Monitor {
	m := &Monitor{
		registry: registry,
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "adcsim_modbus_requests_total",
			Help: "Modbus requests answered, by function and outcome.",
		}, []string{"function", "status"}),
		Conversions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "adcsim_conversions_total",
			Help: "Channel conversions, by signal standard and outcome.",
		}, []string{"signal", "status"}),
		DigitalCode: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "adcsim_channel_digital_code",
			Help: "Last digital code of a channel.",
		}, []string{"channel"}),
		ElectricalValue: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "adcsim_channel_electrical_value",
			Help: "Last electrical value in volts presented to the converter.",
		}, []string{"channel"}),
		EngineeringValue: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "adcsim_channel_engineering_value",
			Help: "Last simulated engineering value of a channel.",
		}, []string{"channel"}),
	}
	registry.MustRegister(m.Requests, m.Conversions, m.DigitalCode, m.ElectricalValue, m.EngineeringValue)
	return m
}

func (m *Monitor) ObserveRequest(functionCode uint8, err error) {
	m.Requests.WithLabelValues(functionName(functionCode), status(err)).Inc()
}

func (m *Monitor) ObserveSample(ch *adcsim.Channel, st adcsim.ChannelState, r adcsim.Result, err error) {
	m.Conversions.WithLabelValues(st.Signal.String(), status(err)).Inc()
	if err != nil {
		return
	}
	m.DigitalCode.WithLabelValues(ch.Name).Set(float64(r.DigitalCode))
	m.ElectricalValue.WithLabelValues(ch.Name).Set(r.ElectricalValue)
	m.EngineeringValue.WithLabelValues(ch.Name).Set(st.Value)
}

func functionName(fc uint8) string {
	switch fc {
	case 0x02:
		return "read_discrete_inputs"
	case 0x03:
		return "read_holding_registers"
	case 0x04:
		return "read_input_registers"
	case 0x06:
		return "write_single_register"
	case 0x10:
		return "write_multiple_registers"
	default:
		return fmt.Sprintf("0x%02X", fc)
	}
}

func status(err error) string {
	var rangeErr *adcsim.InvalidRangeError
	var signalErr *adcsim.UnsupportedSignalError
	var codeErr *adcsim.DigitalCodeOutOfRangeError
	var adcErr *adcsim.InvalidAdcConfigError
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, adcsim.ErrIllegalFunction):
		return "illegal_function"
	case errors.Is(err, adcsim.ErrIllegalDataAddress):
		return "illegal_data_address"
	case errors.Is(err, adcsim.ErrIllegalDataValue):
		return "illegal_data_value"
	case errors.As(err, &rangeErr):
		return "invalid_range"
	case errors.As(err, &signalErr):
		return "unsupported_signal"
	case errors.As(err, &codeErr):
		return "code_out_of_range"
	case errors.As(err, &adcErr):
		return "invalid_adc_config"
	default:
		return "device_failure"
	}
}

// Handler serves /metrics and /health.
func (m *Monitor) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	return mux
}

// StartMetricsServer serves Handler on addr in the background. Shut the returned server down to
// stop it.
func (m *Monitor) StartMetricsServer(addr string) *http.Server {
	srv := &http.Server{Addr: addr, Handler: m.Handler(), ReadHeaderTimeout: 5 * time.Second}
	slog.Info("metrics server started", "addr", addr)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server failed", "err", err)
		}
	}()
	return srv
}
