package service

import (
	"fmt"
	"strings"
	"time"

	config "github.com/maheshrc27/autoposter/configs"
	"github.com/maheshrc27/autoposter/pkg/utils"
)

var captionTemplates = []string{
	"Having fun at the carnival! 🎉",
	"Another great day for soca and music! 🥳",
	"Making memories that last forever! 🍹",
	"Colors, feathers, and pure freedom! 🪶✨",
	"This is how we do carnival in the islands 🌴🔥",
	"Soca therapy in full effect! 🎶💃",
	"Energy too high to calm down 🚀",
	"Every beat of the drum tells a story 🥁❤️",
	"Mas is not just a festival, it's a lifestyle 🌟",
	"From sunrise to sunset, pure carnival spirit 🌞🌙",
	"One love, one people, one carnival 💛💚❤️",
}

var baseHashtags = []string{
	"#carnival", "#soca", "#caribbean", "#trinidadcarnival", "#carnaval", "#fete",
	"#socamusic", "#carnivalcostume", "#mas", "#jouvert", "#caribbeancarnival", "#cropover",
	"#playmas", "#jabjab", "#socavibes", "#carnivalculture",
}

type CaptionService interface {
	// Build returns a caption; credit adds an attribution line for remote content.
	Build(credit string) string
}

type captionService struct {
	cfg  config.Caption
	rand utils.Rand
	now  func() time.Time
}

func NewCaptionService(cfg config.Caption, r utils.Rand, now func() time.Time) CaptionService {
	return &captionService{cfg: cfg, rand: r, now: now}
}

func (s *captionService) Build(credit string) string {
	text := captionTemplates[s.rand.IntN(len(captionTemplates))]

	year := s.now().Year()
	pool := append([]string{}, baseHashtags...)
	pool = append(pool, fmt.Sprintf("#carnival%d", year), fmt.Sprintf("#soca%d", year))
	s.rand.Shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })

	n := s.cfg.HashtagCount
	if n > len(pool) {
		n = len(pool)
	}
	tags := append(pool[:n:n], s.cfg.BrandTag)

	seen := map[string]bool{}
	var unique []string
	for _, tag := range tags {
		if tag == "" || seen[strings.ToLower(tag)] {
			continue
		}
		seen[strings.ToLower(tag)] = true
		unique = append(unique, tag)
	}

	caption := text + "\n\n" + strings.Join(unique, " ")
	if credit = strings.TrimPrefix(credit, "@"); credit != "" {
		caption += "\n\n📸 @" + credit
	}
	return caption
}
