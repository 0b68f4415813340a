package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/nimdanitro/sensortag-go/pkg/sensortag"
	"github.com/nimdanitro/sensortag-go/pkg/simtag"
	"github.com/nimdanitro/sensortag-go/pkg/sink"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"
	"go.opentelemetry.io/contrib/bridges/otelzap"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/log/global"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// events buffered per network sink before new ones are dropped
const sinkQueueSize = 1024

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

type device struct {
	sim    *simtag.Device
	sensor *sensortag.Sensor
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	// Parse command line flags
	var (
		devices  = pflag.IntP("devices", "n", getEnvInt("DEVICES", 1), "Number of simulated SensorTags")
		listen   = pflag.String("listen", getEnv("LISTEN_ADDR", ":8080"), "HTTP listen address for /ws and /metrics")
		logLevel = pflag.String("log-level", getEnv("LOG_LEVEL", "info"), "Log level (debug, info, warn, error)")
		throttle = pflag.Bool("throttle", getEnv("ACCELEROMETER_THROTTLE", "") == "true", "Limit accelerometer events to one per 100ms")
		mqttCfg  sink.MQTTConfig
		influx   sink.InfluxConfig
		redisCfg sink.RedisConfig
	)
	pflag.StringVar(&mqttCfg.Broker, "mqtt-broker", getEnv("MQTT_BROKER", ""), "MQTT broker URL, e.g. tcp://localhost:1883")
	pflag.StringVar(&mqttCfg.ClientID, "mqtt-client-id", getEnv("MQTT_CLIENT_ID", "sensortag-go"), "MQTT client id")
	pflag.StringVar(&mqttCfg.Username, "mqtt-username", getEnv("MQTT_USERNAME", ""), "MQTT username")
	pflag.StringVar(&mqttCfg.Password, "mqtt-password", getEnv("MQTT_PASSWORD", ""), "MQTT password")
	pflag.StringVar(&mqttCfg.Prefix, "mqtt-prefix", getEnv("MQTT_PREFIX", "sensortag"), "MQTT topic prefix")
	pflag.Uint8Var(&mqttCfg.QoS, "mqtt-qos", uint8(getEnvInt("MQTT_QOS", 0)), "MQTT QoS level (0, 1 or 2)")
	pflag.StringVar(&influx.URL, "influx-url", getEnv("INFLUX_URL", ""), "InfluxDB URL")
	pflag.StringVar(&influx.Token, "influx-token", getEnv("INFLUX_TOKEN", ""), "InfluxDB token")
	pflag.StringVar(&influx.Org, "influx-org", getEnv("INFLUX_ORG", ""), "InfluxDB organisation")
	pflag.StringVar(&influx.Bucket, "influx-bucket", getEnv("INFLUX_BUCKET", ""), "InfluxDB bucket")
	pflag.StringVar(&redisCfg.Addr, "redis-addr", getEnv("REDIS_ADDR", ""), "Redis address for event streams")
	pflag.StringVar(&redisCfg.Password, "redis-password", getEnv("REDIS_PASSWORD", ""), "Redis password")
	pflag.Int64Var(&redisCfg.MaxLen, "redis-maxlen", int64(getEnvInt("REDIS_MAXLEN", 10000)), "Approximate maximum length of each event stream")
	pflag.Parse()

	if mqttCfg.QoS > 2 {
		log.Fatalf("invalid MQTT QoS %d", mqttCfg.QoS)
	}

	// Setup Otel
	shutdown, err := setupOTelSDK(ctx)
	defer shutdown(context.Background())
	if err != nil {
		panic(err)
	}

	// Initialize logger
	level, err := zapcore.ParseLevel(*logLevel)
	if err != nil {
		level = zapcore.InfoLevel
	}
	core := zapcore.NewTee(
		zapcore.NewCore(zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()), zapcore.AddSync(os.Stdout), level),
		otelzap.NewCore("github.com/nimdanitro/sensortag-go", otelzap.WithLoggerProvider(global.GetLoggerProvider())),
	)
	logger := zap.New(core)
	defer logger.Sync()
	zap.ReplaceGlobals(logger)
	logger.Info("starting up", zap.String("version", version), zap.String("commit", commit), zap.String("buildDate", date))

	if *devices < 1 {
		fmt.Println("Please specify at least one device with the --devices flag")
		return
	}

	// Initialize sinks
	hub := sink.NewHub(logger)
	metrics, err := sink.NewMetrics(prometheus.DefaultRegisterer)
	if err != nil {
		logger.Fatal("cannot register metrics", zap.Error(err))
	}
	sinks := []sink.Sink{hub, metrics}

	if mqttCfg.Broker != "" {
		m, err := sink.DialMQTT(mqttCfg, logger)
		if err != nil {
			logger.Fatal("cannot connect to mqtt", zap.String("broker", mqttCfg.Broker), zap.Error(err))
		}
		sinks = append(sinks, sink.NewQueue(m, sinkQueueSize, logger))
	}
	if influx.URL != "" {
		sinks = append(sinks, sink.NewInflux(influx, logger))
	}
	if redisCfg.Addr != "" {
		r := sink.NewRedis(redisCfg, logger)
		if err := r.Ping(ctx); err != nil {
			logger.Fatal("cannot connect to redis", zap.String("addr", redisCfg.Addr), zap.Error(err))
		}
		sinks = append(sinks, sink.NewQueue(r, sinkQueueSize, logger))
	}
	defer func() {
		for _, s := range sinks {
			if err := s.Close(); err != nil {
				logger.Warn("cannot close sink", zap.Error(err))
			}
		}
	}()

	// Create the devices
	opts := []sensortag.Option{sensortag.WithLogger(logger)}
	if *throttle {
		opts = append(opts, sensortag.WithAccelerometerThrottle())
	}
	tags := make([]device, 0, *devices)
	for i := 0; i < *devices; i++ {
		sim, err := simtag.New(simtag.WithLogger(logger), simtag.WithLatency(20*time.Millisecond))
		if err != nil {
			logger.Fatal("cannot create device", zap.Error(err))
		}
		s, err := sensortag.New(sim, opts...)
		if err != nil {
			logger.Fatal("cannot create sensor", zap.Error(err))
		}
		for _, sk := range sinks {
			s.Subscribe(sk.Handle)
		}
		s.OnButtonPress(func() {
			logger.Info("button pressed", zap.String("sensorId", s.ID()))
		})
		tags = append(tags, device{sim: sim, sensor: s})
		logger.Info("sensor ready", zap.String("sensorId", s.ID()))
	}

	// Serve websocket and metrics
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	hub.Register(r)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	srv := &http.Server{Addr: *listen, Handler: otelhttp.NewHandler(r, "sensortag-go")}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server failed", zap.Error(err))
			cancel()
		}
	}()
	logger.Info("listening", zap.String("addr", *listen))

	for _, t := range tags {
		go t.sensor.Start(ctx)
	}

	<-ctx.Done()
	logger.Info("shutting down")

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	for _, t := range tags {
		id := t.sensor.ID()
		t.sensor.Stop(stopCtx, func(err error) {
			if err != nil {
				logger.Warn("sensor stopped with errors", zap.String("sensorId", id), zap.Error(err))
				return
			}
			logger.Info("sensor stopped", zap.String("sensorId", id))
		})
		t.sim.Close()
	}
	if err := srv.Shutdown(stopCtx); err != nil {
		logger.Warn("cannot shut down http server", zap.Error(err))
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	v, err := strconv.Atoi(getEnv(key, strconv.Itoa(defaultValue)))
	if err != nil {
		log.Printf("Environment variable %s is not a number, using %d", key, defaultValue)
		return defaultValue
	}
	return v
}
