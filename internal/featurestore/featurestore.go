// Package featurestore assembles a models.FeatureSnapshot for one payment
// event from the velocity and profile stores. It is the single place that
// turns raw entity state into the numeric feature vector every detector and
// the ML scorer read from. Reads (Compute) and writes (UpdateProfiles) are
// split: the pipeline computes features strictly before scoring, then fires
// the profile/velocity updates as a best-effort post-decision side effect.
package featurestore

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/riskcore/fraudengine/internal/detectors"
	"github.com/riskcore/fraudengine/internal/models"
	"github.com/riskcore/fraudengine/internal/store"
)

var highRiskCountries = detectors.DefaultHighRiskCountries()

const earthRadiusKm = 6371.0

// cardUserWindow bounds how far back card/device-to-user relationship
// matching looks.
const cardUserWindow = 30 * 24 * time.Hour

// avsMatchCodes are the AVS result codes treated as a match; an absent
// result is also treated as a match (nothing to contradict).
var avsMatchCodes = map[string]bool{"Y": true, "M": true, "X": true, "D": true, "F": true}

// haversineKm returns the great-circle distance in kilometers between two
// lat/lon points.
func haversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	if lat1 == 0 && lon1 == 0 {
		return 0
	}
	rlat1 := lat1 * math.Pi / 180
	rlat2 := lat2 * math.Pi / 180
	dLat := (lat2 - lat1) * math.Pi / 180
	dLon := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rlat1)*math.Cos(rlat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusKm * c
}

// Store computes feature snapshots, reading from the velocity and profile
// stores with best-effort degradation: any failed sub-fetch is recorded in
// Degraded/DegradedParts rather than failing the whole snapshot, per the
// pipeline's graceful-degradation contract.
type Store struct {
	velocity *store.VelocityStore
	profiles *store.ProfileStore
}

// NewStore builds a feature store over the given velocity and profile
// stores.
func NewStore(velocity *store.VelocityStore, profiles *store.ProfileStore) *Store {
	return &Store{velocity: velocity, profiles: profiles}
}

// Compute builds the full feature snapshot for event by fetching velocity
// counters, entity profiles and cross-entity relationship flags. It does
// not mutate any stored state; call UpdateProfiles afterward to record this
// event's own contribution.
func (s *Store) Compute(ctx context.Context, event *models.PaymentEvent) *models.FeatureSnapshot {
	snap := &models.FeatureSnapshot{
		TransactionID: event.TransactionID,
		ComputedAt:    time.Now(),
	}

	cardKey, deviceKey, ipKey, userKey := event.CardToken, event.Device.DeviceID, event.Geo.IPAddress, event.Subscriber.UserID
	now := event.Timestamp

	cardVel, err := s.velocity.CountsForWindows(ctx, models.EntityCard, cardKey, models.MetricAttempts, now)
	if err != nil {
		s.degrade(snap, "card_velocity", err)
	} else {
		snap.CardVelocity = cardVel
		snap.CardAttempts10m = cardVel[models.Window10Min].Count
	}

	if declines10m, err := s.velocity.Count(ctx, models.EntityCard, cardKey, models.MetricDeclines, now, models.Window10Min.Duration()); err != nil {
		s.degrade(snap, "card_declines", err)
	} else {
		snap.CardDeclines10m = declines10m
		if snap.CardAttempts10m > 0 {
			snap.CardDeclineRate10m = float64(declines10m) / float64(snap.CardAttempts10m)
		}
	}

	deviceVel, err := s.velocity.CountsForWindows(ctx, models.EntityDevice, deviceKey, models.MetricAttempts, now)
	if err != nil {
		s.degrade(snap, "device_velocity", err)
	} else {
		snap.DeviceVelocity = deviceVel
	}

	ipVel, err := s.velocity.CountsForWindows(ctx, models.EntityIP, ipKey, models.MetricAttempts, now)
	if err != nil {
		s.degrade(snap, "ip_velocity", err)
	} else {
		snap.IPVelocity = ipVel
	}

	acctVel, err := s.velocity.CountsForWindows(ctx, models.EntityAccount, userKey, models.MetricTransactions, now)
	if err != nil {
		s.degrade(snap, "account_velocity", err)
	} else {
		snap.AccountVelocity = acctVel
		snap.UserTransactions24h = acctVel[models.Window24Hour].Count
	}

	if v, err := s.velocity.CountDistinct(ctx, models.EntityDevice, deviceKey, models.MetricDistinctCards, now, models.Window1Hour.Duration()); err != nil {
		s.degrade(snap, "device_distinct_cards", err)
	} else {
		snap.DeviceDistinctCards1h = v
	}
	if v, err := s.velocity.CountDistinct(ctx, models.EntityDevice, deviceKey, models.MetricDistinctCards, now, models.Window24Hour.Duration()); err != nil {
		s.degrade(snap, "device_distinct_cards_24h", err)
	} else {
		snap.DeviceDistinctCards24h = v
	}
	if v, err := s.velocity.CountDistinct(ctx, models.EntityIP, ipKey, models.MetricDistinctCards, now, models.Window1Hour.Duration()); err != nil {
		s.degrade(snap, "ip_distinct_cards", err)
	} else {
		snap.IPDistinctCards1h = v
	}
	if v, err := s.velocity.CountDistinct(ctx, models.EntityCard, cardKey, models.MetricDistinctMerchants, now, models.Window24Hour.Duration()); err != nil {
		s.degrade(snap, "card_distinct_merchants", err)
	} else {
		snap.CardDistinctMerchants24h = v
	}
	if v, err := s.velocity.CountDistinct(ctx, models.EntityCard, cardKey, models.MetricDistinctDevices, now, models.Window24Hour.Duration()); err != nil {
		s.degrade(snap, "card_distinct_devices", err)
	} else {
		snap.CardDistinctDevices24h = v
	}
	if v, err := s.velocity.CountDistinct(ctx, models.EntityCard, cardKey, models.MetricDistinctIPs, now, models.Window24Hour.Duration()); err != nil {
		s.degrade(snap, "card_distinct_ips", err)
	} else {
		snap.CardDistinctIPs24h = v
	}

	cardMatch, err := s.velocity.HasDistinct(ctx, models.EntityAccount, userKey, models.MetricDistinctCards, cardKey, now, cardUserWindow)
	if err != nil {
		s.degrade(snap, "card_user_match", err)
	} else {
		snap.CardUserMatch = cardMatch
		snap.IsNewCardForUser = !cardMatch
	}
	deviceMatch, err := s.velocity.HasDistinct(ctx, models.EntityAccount, userKey, models.MetricDistinctDevices, deviceKey, now, cardUserWindow)
	if err != nil {
		s.degrade(snap, "device_user_match", err)
	} else {
		snap.DeviceUserMatch = deviceMatch
		snap.IsNewDeviceForUser = !deviceMatch
	}

	cardProfile, err := s.profiles.Load(ctx, models.EntityCard, cardKey)
	if err != nil {
		s.degrade(snap, "card_profile", err)
	} else {
		snap.CardProfile = cardProfile
		snap.CardChargebackCount = cardProfile.ChargebackCount
	}

	deviceProfile, err := s.profiles.Load(ctx, models.EntityDevice, deviceKey)
	if err != nil {
		s.degrade(snap, "device_profile", err)
	} else {
		snap.DeviceProfile = deviceProfile
		snap.DeviceChargebackCount = deviceProfile.ChargebackCount
	}

	ipProfile, err := s.profiles.Load(ctx, models.EntityIP, ipKey)
	if err != nil {
		s.degrade(snap, "ip_profile", err)
	} else {
		snap.IPProfile = ipProfile
	}

	acctProfile, err := s.profiles.Load(ctx, models.EntityAccount, userKey)
	if err != nil {
		s.degrade(snap, "account_profile", err)
	} else {
		snap.AccountProfile = acctProfile
		snap.UserChargebackCount90d = acctProfile.ChargebackCount90d
		snap.UserRefundCount90d = acctProfile.RefundCount90d
		snap.UserRiskTier = acctProfile.RiskTier
	}

	snap.AmountUSD = event.AmountUSD()
	snap.AmountZScore = amountZScore(event, acctProfile, snap.UserTransactions24h)

	loc := deviceTimezone(event.Device.Timezone)
	localNow := now.In(loc)
	snap.HourOfDay = localNow.Hour()
	snap.IsWeekend = localNow.Weekday() == time.Saturday || localNow.Weekday() == time.Sunday

	snap.AVSMatch = event.Verification.AVSResult == "" || avsMatchCodes[strings.ToUpper(event.Verification.AVSResult)]
	snap.CVVMatch = event.Verification.CVVResult == "" || strings.ToUpper(event.Verification.CVVResult) == "M"

	if cardProfile != nil && !cardProfile.LastGeoAt.IsZero() {
		snap.DistanceFromLastKm = haversineKm(cardProfile.LastGeoLat, cardProfile.LastGeoLon, event.Geo.Latitude, event.Geo.Longitude)
		snap.HoursSinceLastGeo = now.Sub(cardProfile.LastGeoAt).Hours()
		if snap.HoursSinceLastGeo > 0 {
			snap.ImpliedSpeedKmh = snap.DistanceFromLastKm / snap.HoursSinceLastGeo
		}
	}

	snap.IPCardCountryMismatch = event.Geo.Country != "" && event.CardCountry != "" && event.Geo.Country != event.CardCountry
	snap.IsHighRiskCountry = highRiskCountries[event.Geo.Country] || highRiskCountries[event.CardCountry]
	snap.IsVPN = event.Geo.IsVPN
	snap.IsProxy = event.Geo.IsProxy
	snap.IsDatacenterIP = event.Geo.IsDatacenter
	snap.IsTorExitNode = event.Geo.IsTor

	snap.IsEmulator = event.Device.IsEmulator || (deviceProfile != nil && deviceProfile.IsEmulator)
	snap.IsRooted = event.Device.IsRooted || (deviceProfile != nil && deviceProfile.IsRooted)
	snap.SuspiciousUA = suspiciousUserAgent(event)
	snap.FingerprintIncomplete = event.Device.DeviceID == "" || event.Device.FingerprintMissingCount() >= 3

	snap.IsGuest = event.Subscriber.IsGuest
	denominator := float64(30 * snap.UserTransactions24h)
	if denominator > 0 {
		snap.EstimatedChargebackRate90d = float64(snap.UserChargebackCount90d) / denominator
	}

	snap.IsHighValue = event.IsHighValue()
	snap.Has3DS = event.Has3DS()
	snap.IsHighRiskSubtype = event.IsHighRiskSubtype()

	snap.DeviceDataPresent = event.Device.DeviceID != ""
	snap.GeoDataPresent = event.Geo.IPAddress != ""
	snap.VerificationDataPresent = event.Verification.AVSResult != "" || event.Verification.CVVResult != "" || event.Verification.ThreeDSResult != ""

	return snap
}

// amountZScore implements the fallback chain: use the account profile's
// Welford-tracked mean/std once at least two samples exist, else fall back
// to a 24h-average estimate with std floored at max(mean, 1), rounded to
// four decimal places.
func amountZScore(event *models.PaymentEvent, acctProfile *models.EntityProfile, userTransactions24h int64) float64 {
	x := float64(event.AmountCents)
	if acctProfile != nil && acctProfile.AmountCount >= 2 {
		std := acctProfile.StdDevCents()
		if std > 0 {
			return roundTo((x-acctProfile.AmountMeanCents)/std, 4)
		}
	}
	if acctProfile != nil && userTransactions24h > 0 {
		mean := float64(acctProfile.TotalAmountCents) / float64(userTransactions24h)
		std := math.Max(mean, 1)
		return roundTo((x-mean)/std, 4)
	}
	return 0
}

func roundTo(v float64, places int) float64 {
	scale := math.Pow(10, float64(places))
	return math.Round(v*scale) / scale
}

// deviceTimezone parses a device-reported IANA timezone name, falling back
// to UTC when absent or unparseable.
func deviceTimezone(name string) *time.Location {
	if name == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}

// suspiciousUserAgent is a coarse heuristic over the device's reported
// browser/OS strings: known scripting-tool tokens, or a client reporting no
// browser/OS at all while still supplying a device ID.
func suspiciousUserAgent(event *models.PaymentEvent) bool {
	ua := strings.ToLower(event.Device.Browser + " " + event.Device.OS)
	for _, token := range []string{"curl", "python", "headless", "phantom", "bot"} {
		if strings.Contains(ua, token) {
			return true
		}
	}
	return event.Device.DeviceID != "" && event.Device.Browser == "" && event.Device.OS == ""
}

// UpdateProfiles records this event's contribution to velocity counters and
// entity profiles. Called as a post-decision side effect, after the
// snapshot that informed the decision has already been computed and used,
// so this write can never influence the decision it follows. isDecline
// marks whether the transaction was declined (this engine treats its own
// BLOCK decision as the decline signal, since no separate processor
// response is available at decision time).
func (s *Store) UpdateProfiles(ctx context.Context, event *models.PaymentEvent, isDecline bool) {
	cardKey, deviceKey, ipKey, userKey := event.CardToken, event.Device.DeviceID, event.Geo.IPAddress, event.Subscriber.UserID
	now := event.Timestamp

	if _, err := s.velocity.Increment(ctx, models.EntityCard, cardKey, models.MetricAttempts, event.TransactionID, now); err != nil {
		log.Warn().Err(err).Msg("card attempts increment failed")
	}
	if isDecline {
		if _, err := s.velocity.Increment(ctx, models.EntityCard, cardKey, models.MetricDeclines, event.TransactionID, now); err != nil {
			log.Warn().Err(err).Msg("card declines increment failed")
		}
	}
	if _, err := s.velocity.Increment(ctx, models.EntityDevice, deviceKey, models.MetricAttempts, event.TransactionID, now); err != nil {
		log.Warn().Err(err).Msg("device attempts increment failed")
	}
	if _, err := s.velocity.Increment(ctx, models.EntityIP, ipKey, models.MetricAttempts, event.TransactionID, now); err != nil {
		log.Warn().Err(err).Msg("ip attempts increment failed")
	}
	if _, err := s.velocity.Increment(ctx, models.EntityAccount, userKey, models.MetricTransactions, event.TransactionID, now); err != nil {
		log.Warn().Err(err).Msg("account transactions increment failed")
	}

	if err := s.velocity.AddDistinct(ctx, models.EntityDevice, deviceKey, models.MetricDistinctCards, cardKey, now); err != nil {
		log.Warn().Err(err).Msg("device distinct cards write failed")
	}
	if err := s.velocity.AddDistinct(ctx, models.EntityIP, ipKey, models.MetricDistinctCards, cardKey, now); err != nil {
		log.Warn().Err(err).Msg("ip distinct cards write failed")
	}
	if err := s.velocity.AddDistinct(ctx, models.EntityCard, cardKey, models.MetricDistinctMerchants, event.ServiceID, now); err != nil {
		log.Warn().Err(err).Msg("card distinct merchants write failed")
	}
	if err := s.velocity.AddDistinct(ctx, models.EntityCard, cardKey, models.MetricDistinctDevices, deviceKey, now); err != nil {
		log.Warn().Err(err).Msg("card distinct devices write failed")
	}
	if err := s.velocity.AddDistinct(ctx, models.EntityCard, cardKey, models.MetricDistinctIPs, ipKey, now); err != nil {
		log.Warn().Err(err).Msg("card distinct ips write failed")
	}
	if err := s.velocity.AddDistinct(ctx, models.EntityAccount, userKey, models.MetricDistinctCards, cardKey, now); err != nil {
		log.Warn().Err(err).Msg("account distinct cards write failed")
	}
	if err := s.velocity.AddDistinct(ctx, models.EntityAccount, userKey, models.MetricDistinctDevices, deviceKey, now); err != nil {
		log.Warn().Err(err).Msg("account distinct devices write failed")
	}

	cardProfile, err := s.profiles.Load(ctx, models.EntityCard, cardKey)
	if err == nil {
		cardProfile.Touch(now)
		cardProfile.LastGeoCountry = event.Geo.Country
		cardProfile.LastGeoLat, cardProfile.LastGeoLon = event.Geo.Latitude, event.Geo.Longitude
		cardProfile.LastGeoAt = now
		_ = s.profiles.Save(ctx, cardProfile)
	}

	deviceProfile, err := s.profiles.Load(ctx, models.EntityDevice, deviceKey)
	if err == nil {
		deviceProfile.Touch(now)
		deviceProfile.IsEmulator = deviceProfile.IsEmulator || event.Device.IsEmulator
		deviceProfile.IsRooted = deviceProfile.IsRooted || event.Device.IsRooted
		deviceProfile.LastCountry = event.Geo.Country
		deviceProfile.LastCity = event.Geo.City
		_ = s.profiles.Save(ctx, deviceProfile)
	}

	ipProfile, err := s.profiles.Load(ctx, models.EntityIP, ipKey)
	if err == nil {
		ipProfile.Touch(now)
		ipProfile.IsDatacenter = event.Geo.IsDatacenter
		ipProfile.IsVPN = event.Geo.IsVPN
		ipProfile.IsProxy = event.Geo.IsProxy
		ipProfile.IsTor = event.Geo.IsTor
		ipProfile.LastGeoCountry = event.Geo.Country
		_ = s.profiles.Save(ctx, ipProfile)
	}

	acctProfile, err := s.profiles.Load(ctx, models.EntityAccount, userKey)
	if err == nil {
		acctProfile.Touch(now)
		acctProfile.AccountAgeDays = event.Subscriber.AccountAgeDays
		acctProfile.TotalAmountCents += event.AmountCents
		acctProfile.ObserveAmount(event.AmountCents)
		if acctProfile.RiskTier == "" {
			acctProfile.RiskTier = models.RiskNormal
		}
		_ = s.profiles.Save(ctx, acctProfile)
	}

	serviceProfile, err := s.profiles.Load(ctx, models.EntityService, event.ServiceID)
	if err == nil {
		serviceProfile.Touch(now)
		serviceProfile.ServiceName = event.ServiceName
		_ = s.profiles.Save(ctx, serviceProfile)
	}
}

// Zero returns an empty, fully-degraded snapshot. The decision pipeline
// substitutes it when the feature stage overruns its soft budget, and in
// safe mode.
func Zero(transactionID string) *models.FeatureSnapshot {
	return &models.FeatureSnapshot{
		TransactionID: transactionID,
		Degraded:      true,
		DegradedParts: []string{"all"},
		ComputedAt:    time.Now(),
	}
}

func (s *Store) degrade(snap *models.FeatureSnapshot, part string, err error) {
	snap.Degraded = true
	snap.DegradedParts = append(snap.DegradedParts, part)
	log.Warn().Err(err).Str("part", part).Msg("feature store degraded")
}
