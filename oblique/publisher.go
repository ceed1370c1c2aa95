package oblique

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sort"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// BlockManifest announces one derived project to the matching stage
type BlockManifest struct {
	Project   string `json:"project"`
	Cameras   []int  `json:"cameras"`
	Pairs     []Pair `json:"pairs"`
	Timestamp int64  `json:"timestamp"`
}

// PlanSummary is the combined message of a planning run
type PlanSummary struct {
	Project   string         `json:"project"`
	Blocks    []string       `json:"blocks"`
	Outside   int            `json:"outside"`
	Groups    map[string]int `json:"groups"`
	Timestamp int64          `json:"timestamp"`
}

// Publisher publishes planning results to MQTT
type Publisher struct {
	client        mqtt.Client
	publishPrefix string
	qos           byte
	retain        bool
	manifests     map[string]*BlockManifest
	mu            sync.RWMutex
}

// NewPublisher creates a publisher. MQTT_PUBLISH_PREFIX overrides the
// default topic prefix.
func NewPublisher(client mqtt.Client) *Publisher {
	prefix := os.Getenv("MQTT_PUBLISH_PREFIX")
	if prefix == "" {
		prefix = DefaultPublishPrefix
	}

	return &Publisher{
		client:        client,
		publishPrefix: prefix,
		qos:           1,
		retain:        true,
		manifests:     make(map[string]*BlockManifest),
	}
}

// SetPrefix overrides the topic prefix
func (p *Publisher) SetPrefix(prefix string) {
	if prefix != "" {
		p.publishPrefix = prefix
	}
}

// SetQoS sets the Quality of Service level for publishing (0, 1, or 2)
func (p *Publisher) SetQoS(qos byte) {
	if qos <= 2 {
		p.qos = qos
	}
}

// SetRetain sets whether published messages should be retained by the broker
func (p *Publisher) SetRetain(retain bool) {
	p.retain = retain
}

func (p *Publisher) publishJSON(topic string, v interface{}) error {
	if p.client == nil || !p.client.IsConnected() {
		return fmt.Errorf("MQTT client not connected")
	}

	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshaling payload for %s: %w", topic, err)
	}

	token := p.client.Publish(topic, p.qos, p.retain, payload)
	if token.WaitTimeout(2*time.Second) && token.Error() != nil {
		return fmt.Errorf("publishing to %s: %w", topic, token.Error())
	}
	return nil
}

// PublishBlock publishes the manifest of a derived project to
// {prefix}/blocks/{label}.
func (p *Publisher) PublishBlock(project *Project, pairs []Pair) error {
	cams := make([]int, 0, len(project.Cameras))
	for _, c := range project.Cameras {
		cams = append(cams, c.Key)
	}
	m := &BlockManifest{
		Project:   project.Label,
		Cameras:   cams,
		Pairs:     pairs,
		Timestamp: time.Now().Unix(),
	}

	topic := fmt.Sprintf("%s/blocks/%s", p.publishPrefix, project.Label)
	if err := p.publishJSON(topic, m); err != nil {
		log.Printf("[MQTT] error publishing block %s: %v", project.Label, err)
		return err
	}

	p.mu.Lock()
	p.manifests[project.Label] = m
	p.mu.Unlock()

	log.Printf("[MQTT] published block %s: %d cameras, %d pairs", project.Label, len(cams), len(pairs))
	return nil
}

// PublishStages publishes the alignment stages of a project to
// {prefix}/stages/{label}.
func (p *Publisher) PublishStages(label string, stages []Stage) error {
	topic := fmt.Sprintf("%s/stages/%s", p.publishPrefix, label)
	return p.publishJSON(topic, map[string]interface{}{
		"project":   label,
		"stages":    stages,
		"timestamp": time.Now().Unix(),
	})
}

// PublishSummary publishes the result of a planning run to {prefix}/plan
func (p *Publisher) PublishSummary(src *Project, part *Partition) error {
	s := PlanSummary{
		Project:   src.Label,
		Groups:    make(map[string]int),
		Timestamp: time.Now().Unix(),
	}
	for d, n := range Summarize(src).Groups {
		s.Groups[string(d)] = n
	}
	if part != nil {
		s.Outside = len(part.Outside)
	}

	p.mu.RLock()
	for label := range p.manifests {
		s.Blocks = append(s.Blocks, label)
	}
	p.mu.RUnlock()
	sort.Strings(s.Blocks)

	return p.publishJSON(fmt.Sprintf("%s/plan", p.publishPrefix), s)
}

// GetManifest returns the last published manifest of a block
func (p *Publisher) GetManifest(label string) (*BlockManifest, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	m, ok := p.manifests[label]
	return m, ok
}

// ClearManifests forgets all published manifests
func (p *Publisher) ClearManifests() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.manifests = make(map[string]*BlockManifest)
}
