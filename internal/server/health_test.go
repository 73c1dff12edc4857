package server

import (
	"context"
	"errors"
	"testing"

	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

type mockPinger struct {
	pingErr error
}

func (m *mockPinger) PingContext(context.Context) error {
	return m.pingErr
}

type mockPolicyChecker struct {
	healthErr error
}

func (m *mockPolicyChecker) HealthCheck(context.Context) error {
	return m.healthErr
}

func TestReadiness_Check(t *testing.T) {
	tests := []struct {
		name   string
		pinger Pinger
		policy PolicyChecker
		want   healthpb.HealthCheckResponse_ServingStatus
	}{
		{"no dependencies", nil, nil, healthpb.HealthCheckResponse_SERVING},
		{"database up", &mockPinger{}, nil, healthpb.HealthCheckResponse_SERVING},
		{"database down", &mockPinger{pingErr: errors.New("connection refused")}, nil, healthpb.HealthCheckResponse_NOT_SERVING},
		{"policy up", &mockPinger{}, &mockPolicyChecker{}, healthpb.HealthCheckResponse_SERVING},
		{"policy down", &mockPinger{}, &mockPolicyChecker{healthErr: errors.New("undefined")}, healthpb.HealthCheckResponse_NOT_SERVING},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hs := health.NewServer()
			r := NewReadiness(hs, tt.pinger, tt.policy, nil)
			if got := r.Check(context.Background()); got != tt.want {
				t.Errorf("Check = %v, want %v", got, tt.want)
			}
			resp, err := hs.Check(context.Background(), &healthpb.HealthCheckRequest{})
			if err != nil {
				t.Fatalf("health Check: %v", err)
			}
			if resp.GetStatus() != tt.want {
				t.Errorf("served status = %v, want %v", resp.GetStatus(), tt.want)
			}
		})
	}
}
