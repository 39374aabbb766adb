package detectors

import (
	"context"
	"fmt"

	"github.com/riskcore/fraudengine/internal/models"
)

// MaxTravelSpeedKmh is the fastest speed a legitimate transaction pair can
// imply (covers commercial air travel); faster than this between two
// transactions is impossible travel.
const MaxTravelSpeedKmh = 1000.0

const (
	geoAnomalyTau = 0.4
	geoAnomalyK   = 0.05
)

// GeoAnomalyDetector flags impossible travel against the card's last known
// location, IP/card country mismatches, anonymizing network use and
// transactions from configured high-risk countries.
type GeoAnomalyDetector struct {
	MaxTravelSpeedKmh float64
	HighRiskCountries map[string]bool
}

// DefaultHighRiskCountries mirrors the original implementation's example
// list; operators are expected to override this via policy configuration.
// Exported so the feature store can set FeatureSnapshot.IsHighRiskCountry
// using the same set the detector checks against.
func DefaultHighRiskCountries() map[string]bool {
	return map[string]bool{
		"NG": true, "GH": true, "ID": true, "VN": true,
		"PH": true, "UA": true, "RU": true,
	}
}

// NewGeoAnomalyDetector builds a detector with the default travel-speed
// ceiling and high-risk country set.
func NewGeoAnomalyDetector() *GeoAnomalyDetector {
	return &GeoAnomalyDetector{
		MaxTravelSpeedKmh: MaxTravelSpeedKmh,
		HighRiskCountries: DefaultHighRiskCountries(),
	}
}

func (d *GeoAnomalyDetector) Name() string { return "geo_anomaly" }

func (d *GeoAnomalyDetector) Detect(_ context.Context, event *models.PaymentEvent, features *models.FeatureSnapshot) models.DetectorResult {
	signals := []signal{
		impossibleTravelSignal(d, features),
		countryMismatchSignal(features, event),
		highRiskCountrySignal(d, event),
		torSignal(event),
		vpnProxySignal(event),
		datacenterSignal(event),
	}

	return aggregate(d.Name(), geoAnomalyTau, geoAnomalyK, signals)
}

func impossibleTravelSignal(d *GeoAnomalyDetector, features *models.FeatureSnapshot) signal {
	if features.HoursSinceLastGeo <= 0 || features.ImpliedSpeedKmh <= d.MaxTravelSpeedKmh {
		return signal{}
	}
	return signal{score: 0.8, reason: &models.Reason{
		Code:        models.ReasonImpossibleTravel,
		Description: "implied travel speed since the card's last observed location is impossible",
		Severity:    models.SeverityHigh,
		Source:      "geo_anomaly",
		Score:       0.8,
		Value:       features.ImpliedSpeedKmh,
		Threshold:   d.MaxTravelSpeedKmh,
		Detail:      fmt.Sprintf("implied travel speed %.0f km/h over %.1f km in %.2fh exceeds %.0f km/h", features.ImpliedSpeedKmh, features.DistanceFromLastKm, features.HoursSinceLastGeo, d.MaxTravelSpeedKmh),
	}}
}

func countryMismatchSignal(features *models.FeatureSnapshot, event *models.PaymentEvent) signal {
	if !features.IPCardCountryMismatch {
		return signal{}
	}
	return signal{score: 0.6, reason: &models.Reason{
		Code:        models.ReasonCountryMismatch,
		Description: "IP country does not match the card's issuing country",
		Severity:    models.SeverityMedium,
		Source:      "geo_anomaly",
		Score:       0.6,
		Detail:      fmt.Sprintf("ip country %s does not match card country %s", event.Geo.Country, event.CardCountry),
	}}
}

func highRiskCountrySignal(d *GeoAnomalyDetector, event *models.PaymentEvent) signal {
	if !d.HighRiskCountries[event.Geo.Country] && !d.HighRiskCountries[event.CardCountry] {
		return signal{}
	}
	return signal{score: 0.5, reason: &models.Reason{
		Code:        models.ReasonHighRiskCountry,
		Description: "transaction touches a high-risk country",
		Severity:    models.SeverityMedium,
		Source:      "geo_anomaly",
		Score:       0.5,
		Detail:      fmt.Sprintf("transaction touches high-risk country (ip=%s, card=%s)", event.Geo.Country, event.CardCountry),
	}}
}

func torSignal(event *models.PaymentEvent) signal {
	if !event.Geo.IsTor {
		return signal{}
	}
	return signal{score: 0.8, reason: &models.Reason{
		Code:        models.ReasonGeoTor,
		Description: "request originates from a Tor exit node",
		Severity:    models.SeverityHigh,
		Source:      "geo_anomaly",
		Score:       0.8,
		Detail:      "ip address resolves to a Tor exit node",
	}}
}

func vpnProxySignal(event *models.PaymentEvent) signal {
	if !event.Geo.IsVPN && !event.Geo.IsProxy {
		return signal{}
	}
	return signal{score: 0.4, reason: &models.Reason{
		Code:        models.ReasonGeoVPNProxy,
		Description: "request originates from a VPN or proxy",
		Severity:    models.SeverityLow,
		Source:      "geo_anomaly",
		Score:       0.4,
		Detail:      "ip address resolves to a VPN or proxy exit",
	}}
}

func datacenterSignal(event *models.PaymentEvent) signal {
	if !event.Geo.IsDatacenter {
		return signal{}
	}
	return signal{score: 0.7, reason: &models.Reason{
		Code:        models.ReasonGeoDatacenter,
		Description: "request originates from a datacenter IP range",
		Severity:    models.SeverityHigh,
		Source:      "geo_anomaly",
		Score:       0.7,
		Detail:      "ip address resolves to a datacenter range",
	}}
}
