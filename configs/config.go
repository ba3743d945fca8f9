package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cast"
)

const (
	PriorityLocal  = "local"
	PriorityRemote = "remote"

	MissedSlotFire = "fire"
	MissedSlotDrop = "drop"

	DispatcherLocal = "local"
	DispatcherAsynq = "asynq"

	StateBackendFile     = "file"
	StateBackendPostgres = "postgres"

	BlobBackendNone  = "none"
	BlobBackendR2    = "r2"
	BlobBackendDrive = "drive"
)

type R2 struct {
	AccountID     string
	AccessKey     string
	SecretKey     string
	BucketName    string
	PublicURL     string
	StagingPrefix string
	LibraryPrefix string
	Endpoint      string
}

type Instagram struct {
	UserID             string
	AccessToken        string
	GraphBaseURL       string
	TokenRefreshWindow time.Duration
	PublishPollEvery   time.Duration
	PublishPollLimit   int
}

type Content struct {
	RapidAPIKey      string
	RapidAPIHost     string
	BaseURL          string
	SourceAccounts   []string
	ListTimeout      time.Duration
	DownloadTimeout  time.Duration
	FetchSpacing     time.Duration
	RateLimitBackoff time.Duration
	RateLimitRetries int
}

type Drive struct {
	FolderID        string
	CredentialsFile string
}

type Schedule struct {
	SlotsMin           int
	SlotsMax           int
	ActiveWindowStart  time.Duration
	ActiveWindowEnd    time.Duration
	Perturbation       time.Duration
	CycleDays          int
	DaySkipProbability float64
	PrePostDelayMin    time.Duration
	PrePostDelayMax    time.Duration
	CoolDownMin        time.Duration
	CoolDownMax        time.Duration
	MissedSlotPolicy   string
	MissedSlotGrace    time.Duration
	PlanCron           string
	Location           *time.Location
}

type Media struct {
	LocalDir             string
	PlaceholderPath      string
	TempDir              string
	VideoMinDuration     time.Duration
	VideoMaxDuration     time.Duration
	TrimOverlong         bool
	CoverFrameOffset     time.Duration
	MaxSelectionAttempts int
	FFmpegPath           string
	FFprobePath          string
	CommandTimeout       time.Duration
}

type Caption struct {
	BrandTag     string
	HashtagCount int
}

type State struct {
	Backend      string
	PostgresURI  string
	SessionFile  string
	SeenFile     string
	UsageFile    string
	HistoryFile  string
	SlotsFile    string
	HistoryLimit int
}

type Config struct {
	Port         string
	RedisURI     string
	Dispatcher   string
	PriorityMode string
	UsageQuota   int
	SeenWindow   time.Duration
	RandomSeed   uint64
	SecretKey    string
	BlobBackend  string
	R2           R2
	Instagram    Instagram
	Content      Content
	Drive        Drive
	Schedule     Schedule
	Media        Media
	Caption      Caption
	State        State
}

func LoadConfig() *Config {
	return &Config{
		Port:         getEnv("PORT", "3000"),
		RedisURI:     getEnv("REDIS_URI", ""),
		Dispatcher:   strings.ToLower(getEnv("DISPATCHER", DispatcherLocal)),
		PriorityMode: strings.ToLower(getEnv("PRIORITY_MODE", PriorityLocal)),
		UsageQuota:   getInt("USAGE_QUOTA", 2),
		SeenWindow:   getDuration("SEEN_WINDOW", 48*time.Hour),
		RandomSeed:   cast.ToUint64(getEnv("RANDOM_SEED", "0")),
		SecretKey:    getEnv("SECRET_KEY", ""),
		BlobBackend:  strings.ToLower(getEnv("BLOB_BACKEND", BlobBackendNone)),
		R2: R2{
			AccountID:     getEnv("R2_ACCOUNT_ID", ""),
			AccessKey:     getEnv("R2_ACCESS_KEY", ""),
			SecretKey:     getEnv("R2_SECRET_KEY", ""),
			BucketName:    getEnv("R2_BUCKET_NAME", ""),
			PublicURL:     strings.TrimSuffix(getEnv("R2_PUBLIC_URL", ""), "/"),
			StagingPrefix: getEnv("R2_STAGING_PREFIX", "staging/"),
			LibraryPrefix: getEnv("R2_LIBRARY_PREFIX", "library/"),
			Endpoint:      getEnv("R2_ENDPOINT", ""),
		},
		Instagram: Instagram{
			UserID:             getEnv("IG_USER_ID", ""),
			AccessToken:        getEnv("IG_ACCESS_TOKEN", ""),
			GraphBaseURL:       strings.TrimSuffix(getEnv("IG_GRAPH_URL", "https://graph.instagram.com"), "/"),
			TokenRefreshWindow: getDuration("TOKEN_REFRESH_WINDOW", 7*24*time.Hour),
			PublishPollEvery:   getDuration("PUBLISH_POLL_INTERVAL", 5*time.Second),
			PublishPollLimit:   getInt("PUBLISH_POLL_LIMIT", 36),
		},
		Content: Content{
			RapidAPIKey:      getEnv("RAPIDAPI_KEY", ""),
			RapidAPIHost:     getEnv("RAPIDAPI_HOST", "instagram-social-api.p.rapidapi.com"),
			BaseURL:          strings.TrimSuffix(getEnv("RAPIDAPI_URL", "https://instagram-social-api.p.rapidapi.com"), "/"),
			SourceAccounts:   getList("SOURCE_ACCOUNTS"),
			ListTimeout:      getDuration("REMOTE_LIST_TIMEOUT", 20*time.Second),
			DownloadTimeout:  getDuration("REMOTE_DOWNLOAD_TIMEOUT", 30*time.Second),
			FetchSpacing:     getDuration("SOURCE_FETCH_SPACING", 5*time.Second),
			RateLimitBackoff: getDuration("RATE_LIMIT_BACKOFF", 30*time.Second),
			RateLimitRetries: getInt("RATE_LIMIT_RETRIES", 1),
		},
		Drive: Drive{
			FolderID:        getEnv("DRIVE_FOLDER_ID", ""),
			CredentialsFile: getEnv("GOOGLE_CREDENTIALS_FILE", ""),
		},
		Schedule: Schedule{
			SlotsMin:           getInt("SLOTS_MIN", 3),
			SlotsMax:           getInt("SLOTS_MAX", 5),
			ActiveWindowStart:  getClock("ACTIVE_WINDOW_START", 6*time.Hour),
			ActiveWindowEnd:    getClock("ACTIVE_WINDOW_END", 22*time.Hour),
			Perturbation:       getDuration("SLOT_PERTURBATION", 45*time.Minute),
			CycleDays:          getInt("CYCLE_DAYS", 1),
			DaySkipProbability: cast.ToFloat64(getEnv("DAY_SKIP_PROBABILITY", "0.25")),
			PrePostDelayMin:    getDuration("PRE_POST_DELAY_MIN", time.Minute),
			PrePostDelayMax:    getDuration("PRE_POST_DELAY_MAX", 15*time.Minute),
			CoolDownMin:        getDuration("COOL_DOWN_MIN", 5*time.Minute),
			CoolDownMax:        getDuration("COOL_DOWN_MAX", 30*time.Minute),
			MissedSlotPolicy:   strings.ToLower(getEnv("MISSED_SLOT_POLICY", MissedSlotFire)),
			MissedSlotGrace:    getDuration("MISSED_SLOT_GRACE", 6*time.Hour),
			PlanCron:           getEnv("PLAN_CRON", "0 5 0 * * *"),
			Location:           getLocation("TZ_LOCATION"),
		},
		Media: Media{
			LocalDir:             getEnv("LOCAL_MEDIA_DIR", "localMedia"),
			PlaceholderPath:      getEnv("PLACEHOLDER_PATH", "placeholder.jpg"),
			TempDir:              getEnv("MEDIA_TEMP_DIR", os.TempDir()),
			VideoMinDuration:     getSeconds("VIDEO_MIN_SECONDS", 3),
			VideoMaxDuration:     getSeconds("VIDEO_MAX_SECONDS", 60),
			TrimOverlong:         cast.ToBool(getEnv("TRIM_OVERLONG_VIDEOS", "false")),
			CoverFrameOffset:     getDuration("COVER_FRAME_OFFSET", time.Second),
			MaxSelectionAttempts: getInt("MAX_SELECTION_ATTEMPTS", 3),
			FFmpegPath:           getEnv("FFMPEG_PATH", "ffmpeg"),
			FFprobePath:          getEnv("FFPROBE_PATH", "ffprobe"),
			CommandTimeout:       getDuration("FFMPEG_TIMEOUT", 2*time.Minute),
		},
		Caption: Caption{
			BrandTag:     getEnv("CAPTION_BRAND_TAG", "#CarnivalCompanion"),
			HashtagCount: getInt("CAPTION_HASHTAG_COUNT", 5),
		},
		State: State{
			Backend:      strings.ToLower(getEnv("STATE_BACKEND", StateBackendFile)),
			PostgresURI:  getEnv("POSTGRES_URI", ""),
			SessionFile:  getEnv("SESSION_FILE", "igSession.json"),
			SeenFile:     getEnv("SEEN_FILE", "seenItems.json"),
			UsageFile:    getEnv("USAGE_FILE", "mediaUsage.json"),
			HistoryFile:  getEnv("HISTORY_FILE", "postedHistory.json"),
			SlotsFile:    getEnv("SLOTS_FILE", "scheduleSlots.json"),
			HistoryLimit: getInt("HISTORY_LIMIT", 1000),
		},
	}
}

// Validate reports every missing mandatory option and every inconsistent range at once.
func (c *Config) Validate() error {
	var errs []error
	require := func(value, key string) {
		if value == "" {
			errs = append(errs, fmt.Errorf("%s is required", key))
		}
	}

	require(c.Instagram.UserID, "IG_USER_ID")
	require(c.R2.AccountID, "R2_ACCOUNT_ID")
	require(c.R2.AccessKey, "R2_ACCESS_KEY")
	require(c.R2.SecretKey, "R2_SECRET_KEY")
	require(c.R2.BucketName, "R2_BUCKET_NAME")
	require(c.R2.PublicURL, "R2_PUBLIC_URL")
	if c.Instagram.AccessToken == "" && !fileExists(c.State.SessionFile) {
		errs = append(errs, errors.New("IG_ACCESS_TOKEN is required when no saved session exists"))
	}
	if len(c.Content.SourceAccounts) > 0 {
		require(c.Content.RapidAPIKey, "RAPIDAPI_KEY")
	}

	switch c.BlobBackend {
	case BlobBackendNone, BlobBackendR2:
	case BlobBackendDrive:
		require(c.Drive.FolderID, "DRIVE_FOLDER_ID")
	default:
		errs = append(errs, fmt.Errorf("unknown BLOB_BACKEND %q", c.BlobBackend))
	}

	switch c.State.Backend {
	case StateBackendFile:
	case StateBackendPostgres:
		require(c.State.PostgresURI, "POSTGRES_URI")
	default:
		errs = append(errs, fmt.Errorf("unknown STATE_BACKEND %q", c.State.Backend))
	}

	switch c.Dispatcher {
	case DispatcherLocal:
	case DispatcherAsynq:
		require(c.RedisURI, "REDIS_URI")
	default:
		errs = append(errs, fmt.Errorf("unknown DISPATCHER %q", c.Dispatcher))
	}

	if c.PriorityMode != PriorityLocal && c.PriorityMode != PriorityRemote {
		errs = append(errs, fmt.Errorf("unknown PRIORITY_MODE %q", c.PriorityMode))
	}
	if c.Schedule.MissedSlotPolicy != MissedSlotFire && c.Schedule.MissedSlotPolicy != MissedSlotDrop {
		errs = append(errs, fmt.Errorf("unknown MISSED_SLOT_POLICY %q", c.Schedule.MissedSlotPolicy))
	}
	if c.Schedule.SlotsMin < 1 || c.Schedule.SlotsMax < c.Schedule.SlotsMin {
		errs = append(errs, fmt.Errorf("invalid slot range [%d, %d]", c.Schedule.SlotsMin, c.Schedule.SlotsMax))
	}
	if c.Schedule.ActiveWindowEnd == c.Schedule.ActiveWindowStart {
		errs = append(errs, errors.New("ACTIVE_WINDOW_END must differ from ACTIVE_WINDOW_START"))
	}
	if c.Schedule.CycleDays < 1 {
		errs = append(errs, errors.New("CYCLE_DAYS must be at least 1"))
	}
	if c.Media.VideoMaxDuration < c.Media.VideoMinDuration {
		errs = append(errs, errors.New("VIDEO_MAX_SECONDS must not be below VIDEO_MIN_SECONDS"))
	}
	if n := len(c.SecretKey); n != 0 && n != 16 && n != 24 && n != 32 {
		errs = append(errs, errors.New("SECRET_KEY must be 16, 24 or 32 bytes"))
	}

	return errors.Join(errs...)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	v, err := cast.ToIntE(raw)
	if err != nil {
		slog.Warn("Invalid integer option, using default", "key", key, "default", defaultValue)
		return defaultValue
	}
	return v
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	d, err := cast.ToDurationE(raw)
	if err != nil {
		slog.Warn("Invalid duration option, using default", "key", key, "default", defaultValue)
		return defaultValue
	}
	return d
}

func getSeconds(key string, defaultValue float64) time.Duration {
	secs := defaultValue
	if raw := os.Getenv(key); raw != "" {
		v, err := cast.ToFloat64E(raw)
		if err != nil {
			slog.Warn("Invalid seconds option, using default", "key", key, "default", defaultValue)
		} else {
			secs = v
		}
	}
	return time.Duration(secs * float64(time.Second))
}

// getClock parses an HH:MM clock time into an offset from midnight.
func getClock(key string, defaultValue time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	t, err := time.Parse("15:04", raw)
	if err != nil {
		slog.Warn("Invalid clock option, using default", "key", key, "value", raw)
		return defaultValue
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute
}

func getList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getLocation(key string) *time.Location {
	name := os.Getenv(key)
	if name == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		slog.Warn("Unknown time zone, using local time", "key", key, "value", name)
		return time.Local
	}
	return loc
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
