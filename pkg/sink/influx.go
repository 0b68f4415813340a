package sink

import (
	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/nimdanitro/sensortag-go/pkg/sensortag"
	"go.uber.org/zap"
)

type InfluxConfig struct {
	URL    string
	Token  string
	Org    string
	Bucket string
}

// Influx writes one point per event through the non-blocking write API.
type Influx struct {
	client influxdb2.Client
	write  api.WriteAPI
	log    *zap.Logger
}

func NewInflux(cfg InfluxConfig, log *zap.Logger) *Influx {
	client := influxdb2.NewClient(cfg.URL, cfg.Token)
	i := &Influx{
		client: client,
		write:  client.WriteAPI(cfg.Org, cfg.Bucket),
		log:    log,
	}
	go i.logErrors()
	return i
}

func (i *Influx) logErrors() {
	for err := range i.write.Errors() {
		i.log.Error("influx write failed", zap.Error(err))
	}
}

// Point converts e into an InfluxDB point. Measurement is the snake case
// kind, the sensor id is a tag and the payload values are float fields. A
// button press is recorded as pressed=1.
func Point(e sensortag.Event) *write.Point {
	fields := make(map[string]interface{})
	for k, v := range numericValues(e) {
		fields[k] = v
	}
	if e.Kind == sensortag.KindButtonPress {
		fields["pressed"] = 1
	}
	return influxdb2.NewPoint(Name(e.Kind), map[string]string{"sensor": e.SensorID}, fields, e.Time)
}

func (i *Influx) Handle(e sensortag.Event) {
	i.write.WritePoint(Point(e))
}

func (i *Influx) Close() error {
	i.write.Flush()
	i.client.Close()
	return nil
}
