// Command mock-weather runs a standalone fake of the OpenWeatherMap current
// weather endpoint, for local pipeline runs without a real API key.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/skyward-data/weatherpipe/internal/mockweather"
)

func main() {
	fs := flag.NewFlagSet("mock-weather", flag.ExitOnError)
	addr := fs.String("addr", "127.0.0.1:8089", "Listen address")
	apiKey := fs.String("api-key", "", "If set, reject requests whose appid does not match")
	_ = fs.Parse(os.Args[1:])

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	srv := mockweather.New()
	if *apiKey != "" {
		srv.RequireAPIKey(*apiKey)
	}
	for name, c := range cannedCities {
		srv.SetCity(name, c)
	}

	logger.Info("mock weather API listening",
		slog.String("addr", *addr),
		slog.Int("cities", len(cannedCities)))
	if err := http.ListenAndServe(*addr, srv.Handler()); err != nil {
		fmt.Fprintf(os.Stderr, "mock-weather: %v\n", err)
		os.Exit(1)
	}
}

var cannedCities = map[string]mockweather.Conditions{
	"Paris":  {Description: "light rain", Temperature: 16.4, Humidity: 82, Pressure: 1011, WindSpeed: 4.1, Clouds: 90},
	"Oslo":   {Description: "clear sky", Temperature: 9.2, Humidity: 61, Pressure: 1022, WindSpeed: 2.7, Clouds: 5},
	"Lima":   {Description: "overcast clouds", Temperature: 19.8, Humidity: 88, Pressure: 1013, WindSpeed: 3.3, Clouds: 100},
	"Sydney": {Description: "scattered clouds", Temperature: 22.5, Humidity: 55, Pressure: 1018, WindSpeed: 6.9, Clouds: 40},
	"Nairobi": {Description: "few clouds", Temperature: 24.1, Humidity: 48, Pressure: 1016, WindSpeed: 5.0, Clouds: 20},
}
