package wire

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestParseMeterReading_Valid(t *testing.T) {
	id := uuid.MustParse("5d3a0f6e-9c1b-4f7a-8f2d-1a2b3c4d5e6f")
	payload := []byte(`{"meterId":"` + id.String() + `","kwhConsumedAc":12.500,"voltage":230.00,"timestamp":"2026-06-01T10:00:00Z"}`)

	r, err := ParseMeterReading(payload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.MeterID != id {
		t.Fatalf("meterId mismatch: %s", r.MeterID)
	}
	if r.KwhConsumedAc != 12.5 || r.Voltage != 230 {
		t.Fatalf("unexpected values: %+v", r)
	}
	want := time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)
	if !r.Timestamp.Equal(want) {
		t.Fatalf("timestamp mismatch: %s", r.Timestamp)
	}
}

func TestParseMeterReading_MissingFields(t *testing.T) {
	_, err := ParseMeterReading([]byte(`{"meterId":"5d3a0f6e-9c1b-4f7a-8f2d-1a2b3c4d5e6f"}`))
	if err == nil {
		t.Fatalf("expected error for missing fields")
	}
	for _, f := range []string{"kwhConsumedAc", "voltage", "timestamp"} {
		if !strings.Contains(err.Error(), f) {
			t.Fatalf("error should name %s, got: %v", f, err)
		}
	}
}

func TestParseMeterReading_ZeroEnergyIsValid(t *testing.T) {
	// A brand-new meter legitimately reports 0 kWh; only absence is an error.
	payload := []byte(`{"meterId":"5d3a0f6e-9c1b-4f7a-8f2d-1a2b3c4d5e6f","kwhConsumedAc":0,"voltage":229.80,"timestamp":"2026-06-01T10:00:00+02:00"}`)
	if _, err := ParseMeterReading(payload); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestParseMeterReading_Rejections(t *testing.T) {
	cases := []struct {
		name    string
		payload string
	}{
		{"not json", `{"meterId":`},
		{"bad uuid", `{"meterId":"nope","kwhConsumedAc":1,"voltage":230,"timestamp":"2026-06-01T10:00:00Z"}`},
		{"bad timestamp", `{"meterId":"5d3a0f6e-9c1b-4f7a-8f2d-1a2b3c4d5e6f","kwhConsumedAc":1,"voltage":230,"timestamp":"yesterday"}`},
		{"negative energy", `{"meterId":"5d3a0f6e-9c1b-4f7a-8f2d-1a2b3c4d5e6f","kwhConsumedAc":-0.001,"voltage":230,"timestamp":"2026-06-01T10:00:00Z"}`},
		{"voltage too high", `{"meterId":"5d3a0f6e-9c1b-4f7a-8f2d-1a2b3c4d5e6f","kwhConsumedAc":1,"voltage":500.01,"timestamp":"2026-06-01T10:00:00Z"}`},
		{"voltage negative", `{"meterId":"5d3a0f6e-9c1b-4f7a-8f2d-1a2b3c4d5e6f","kwhConsumedAc":1,"voltage":-1,"timestamp":"2026-06-01T10:00:00Z"}`},
		{"nil uuid", `{"meterId":"00000000-0000-0000-0000-000000000000","kwhConsumedAc":1,"voltage":230,"timestamp":"2026-06-01T10:00:00Z"}`},
	}
	for _, tc := range cases {
		if _, err := ParseMeterReading([]byte(tc.payload)); err == nil {
			t.Fatalf("%s: expected rejection", tc.name)
		}
	}
}

func TestParseVehicleReading_Valid(t *testing.T) {
	id := uuid.MustParse("0b9f54a1-2c3d-4e5f-8a7b-6c5d4e3f2a1b")
	payload := []byte(`{"vehicleId":"` + id.String() + `","soc":87.50,"kwhDeliveredDc":41.250,"batteryTemp":31.20,"timestamp":"2026-06-01T10:00:30Z"}`)

	r, err := ParseVehicleReading(payload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.VehicleID != id || r.Soc != 87.5 || r.KwhDeliveredDc != 41.25 || r.BatteryTemp != 31.2 {
		t.Fatalf("unexpected values: %+v", r)
	}
}

func TestParseVehicleReading_Rejections(t *testing.T) {
	base := `{"vehicleId":"0b9f54a1-2c3d-4e5f-8a7b-6c5d4e3f2a1b","soc":%s,"kwhDeliveredDc":%s,"batteryTemp":%s,"timestamp":"2026-06-01T10:00:00Z"}`
	cases := []struct {
		name            string
		soc, kwh, tempC string
	}{
		{"soc over 100", "100.01", "1", "20"},
		{"soc negative", "-0.5", "1", "20"},
		{"negative energy", "50", "-2", "20"},
		{"temp too cold", "50", "1", "-40.5"},
		{"temp too hot", "50", "1", "80.5"},
	}
	for _, tc := range cases {
		payload := []byte(strings.Replace(strings.Replace(strings.Replace(base, "%s", tc.soc, 1), "%s", tc.kwh, 1), "%s", tc.tempC, 1))
		if _, err := ParseVehicleReading(payload); err == nil {
			t.Fatalf("%s: expected rejection", tc.name)
		}
	}
}

func TestParseVehicleReading_BoundaryValues(t *testing.T) {
	// Range endpoints are inclusive.
	for _, vals := range [][3]string{
		{"0", "0", "-40"},
		{"100", "12.345", "80"},
	} {
		payload := []byte(`{"vehicleId":"0b9f54a1-2c3d-4e5f-8a7b-6c5d4e3f2a1b","soc":` + vals[0] +
			`,"kwhDeliveredDc":` + vals[1] + `,"batteryTemp":` + vals[2] + `,"timestamp":"2026-06-01T10:00:00Z"}`)
		if _, err := ParseVehicleReading(payload); err != nil {
			t.Fatalf("boundary %v rejected: %v", vals, err)
		}
	}
}

func TestTopics(t *testing.T) {
	id := uuid.MustParse("5d3a0f6e-9c1b-4f7a-8f2d-1a2b3c4d5e6f")
	if got := MeterTopic(id); got != "telemetry/meter/"+id.String() {
		t.Fatalf("meter topic: %s", got)
	}
	if got := VehicleTopic(id); got != "telemetry/vehicle/"+id.String() {
		t.Fatalf("vehicle topic: %s", got)
	}
	// Publish topics must match the subscription filters one level deep.
	if !strings.HasPrefix(MeterTopic(id), strings.TrimSuffix(MeterTopicFilter, "+")) {
		t.Fatalf("meter topic does not match filter prefix")
	}
	if !strings.HasPrefix(VehicleTopic(id), strings.TrimSuffix(VehicleTopicFilter, "+")) {
		t.Fatalf("vehicle topic does not match filter prefix")
	}
}
