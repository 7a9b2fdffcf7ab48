package tests

import (
	"context"
	"strconv"
	"testing"
	"time"

	"visitor-router/internal/domain"
	"visitor-router/internal/engine"
	"visitor-router/internal/storage"
)

func BenchmarkDecide(b *testing.B) {
	ctx := context.Background()
	eng := engine.NewEngine(storage.NewMemory())
	regions := []string{"ca", "ny", "tx", "fl"}
	for i := 0; i < 500; i++ {
		_, err := eng.Targets().Add(ctx, domain.Target{
			ID:               strconv.Itoa(i),
			URL:              "http://target" + strconv.Itoa(i) + ".com",
			Value:            strconv.FormatFloat(float64(i%97)/10, 'f', 2, 64),
			MaxAcceptsPerDay: strconv.Itoa(b.N + 1),
			Accept: domain.Accept{
				GeoState: domain.Criteria{In: []string{regions[i%len(regions)]}},
				Hour:     domain.HourCriteria{In: []string{strconv.Itoa(i % 24), "18"}},
			},
		})
		if err != nil {
			b.Fatal(err)
		}
	}
	v := domain.Visitor{GeoState: "ny", Publisher: "abc", Timestamp: time.Date(2018, 7, 13, 18, 0, 0, 0, time.UTC)}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := eng.Decide(ctx, v); err != nil {
			b.Fatal(err)
		}
	}
}
