// mqtt-loadgen publishes synthetic charger telemetry against a broker so the
// ingest pipeline can be exercised without hardware. It simulates a fleet of
// meters and vehicles with cumulative counters that advance with jitter each
// round, optionally mixing in corrupt payloads to exercise the drop path.
//
// Usage examples:
//
//	mqtt-loadgen -broker=tcp://127.0.0.1:1883 -meters=100 -vehicles=100 -rounds=60 -interval=1s
//	mqtt-loadgen -broker=tcp://127.0.0.1:1883 -meters=10 -vehicles=10 -rounds=600 -interval=100ms -invalid_every=50
//
// Notes:
//   - Each worker owns a disjoint slice of the fleet and its own broker
//     connection, so -c also fans out MQTT connections.
//   - Prints a one-line summary with duration and approximate throughput.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"sync"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"evtel/pkg/wire"
)

type meterSim struct {
	id  uuid.UUID
	kwh float64
}

type vehicleSim struct {
	id   uuid.UUID
	soc  float64
	kwh  float64
	temp float64
}

func main() {
	var (
		broker       = flag.String("broker", "tcp://127.0.0.1:1883", "Broker URL, e.g. tcp://127.0.0.1:1883")
		meters       = flag.Int("meters", 50, "Number of simulated meters")
		vehicles     = flag.Int("vehicles", 50, "Number of simulated vehicles")
		rounds       = flag.Int("rounds", 60, "Telemetry rounds to publish (one reading per device per round)")
		interval     = flag.Duration("interval", time.Second, "Pause between rounds (device cadence, compressed)")
		conc         = flag.Int("c", 4, "Number of publisher workers/connections")
		invalidEvery = flag.Int("invalid_every", 0, "If > 0, every Nth message per worker is deliberately corrupt")
		timeout      = flag.Duration("timeout", 10*time.Minute, "Overall timeout for the run")
	)
	flag.Parse()

	if *meters <= 0 && *vehicles <= 0 {
		fmt.Fprintln(os.Stderr, "need at least one of -meters/-vehicles > 0")
		os.Exit(2)
	}
	if *rounds <= 0 || *conc <= 0 {
		fmt.Fprintln(os.Stderr, "-rounds and -c must be > 0")
		os.Exit(2)
	}

	fleet := make([]*meterSim, *meters)
	for i := range fleet {
		fleet[i] = &meterSim{id: uuid.New(), kwh: rand.Float64() * 1000}
	}
	evs := make([]*vehicleSim, *vehicles)
	for i := range evs {
		evs[i] = &vehicleSim{
			id:   uuid.New(),
			soc:  10 + rand.Float64()*40,
			kwh:  rand.Float64() * 500,
			temp: 18 + rand.Float64()*8,
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	var published, failed, corrupt int64
	start := time.Now()

	worker := func(id int, ms []*meterSim, vs []*vehicleSim) {
		opts := mqtt.NewClientOptions().
			AddBroker(*broker).
			SetClientID(fmt.Sprintf("loadgen-%d-%d", os.Getpid(), id))
		client := mqtt.NewClient(opts)
		if token := client.Connect(); !token.WaitTimeout(10*time.Second) || token.Error() != nil {
			fmt.Fprintf(os.Stderr, "worker %d: connect: %v\n", id, token.Error())
			atomic.AddInt64(&failed, int64(*rounds*(len(ms)+len(vs))))
			return
		}
		defer client.Disconnect(250)

		sent := 0
		publish := func(topic string, payload []byte) {
			sent++
			if *invalidEvery > 0 && sent%*invalidEvery == 0 {
				payload = payload[:len(payload)/2]
				atomic.AddInt64(&corrupt, 1)
			}
			token := client.Publish(topic, 1, false, payload)
			if !token.WaitTimeout(5*time.Second) || token.Error() != nil {
				atomic.AddInt64(&failed, 1)
				return
			}
			atomic.AddInt64(&published, 1)
		}

		for round := 0; round < *rounds; round++ {
			select {
			case <-ctx.Done():
				return
			default:
			}
			now := time.Now().UTC()
			for _, m := range ms {
				m.kwh += 0.5 + rand.Float64()*1.5
				body, _ := json.Marshal(wire.MeterReading{
					MeterID:       m.id,
					KwhConsumedAc: m.kwh,
					Voltage:       228 + rand.Float64()*6,
					Timestamp:     now,
				})
				publish(wire.MeterTopic(m.id), body)
			}
			for _, v := range vs {
				v.kwh += 0.4 + rand.Float64()*1.2
				v.soc = min(100, v.soc+0.3+rand.Float64()*0.7)
				v.temp = min(wire.MaxBatteryTemp, v.temp+rand.Float64()*0.5)
				body, _ := json.Marshal(wire.VehicleReading{
					VehicleID:      v.id,
					Soc:            v.soc,
					KwhDeliveredDc: v.kwh,
					BatteryTemp:    v.temp,
					Timestamp:      now,
				})
				publish(wire.VehicleTopic(v.id), body)
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(*interval):
			}
		}
	}

	// Split the fleet across workers; the last worker takes the remainder.
	var wg sync.WaitGroup
	wg.Add(*conc)
	for w := 0; w < *conc; w++ {
		mlo, mhi := span(len(fleet), *conc, w)
		vlo, vhi := span(len(evs), *conc, w)
		go func(id int, ms []*meterSim, vs []*vehicleSim) {
			defer wg.Done()
			worker(id, ms, vs)
		}(w, fleet[mlo:mhi], evs[vlo:vhi])
	}
	wg.Wait()

	elapsed := time.Since(start)
	if elapsed <= 0 {
		elapsed = time.Millisecond
	}
	total := atomic.LoadInt64(&published)
	fmt.Printf("LoadGen: meters=%d vehicles=%d rounds=%d c=%d published=%d corrupt=%d failed=%d Duration=%s Throughput=%.0f msg/s\n",
		*meters, *vehicles, *rounds, *conc, total, atomic.LoadInt64(&corrupt), atomic.LoadInt64(&failed),
		elapsed.Truncate(time.Millisecond), float64(total)/elapsed.Seconds())
}

// span returns worker w's [lo, hi) slice bounds when n items are split
// across c workers.
func span(n, c, w int) (int, int) {
	per := n / c
	lo := w * per
	hi := lo + per
	if w == c-1 {
		hi = n
	}
	return lo, hi
}
