package sim

import (
	"encoding/binary"
	"fmt"
	"math/rand"
	"time"

	"github.com/ValentinKolb/nibble/cmd/util"
	"github.com/ValentinKolb/nibble/lib/common"
	"github.com/ValentinKolb/nibble/lib/registry"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/rcrowley/go-metrics"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var clog = logger.GetLogger("cli")

var (
	SimCmd = &cobra.Command{
		Use:   "sim",
		Short: "Simulate an entity registry",
		Long: `Builds a world of entities, components and systems on top of the trie index
and runs it for a number of steps. Every step deletes and respawns a share of the
entities (churn) and runs all systems once. Reports step latency percentiles and
entity throughput.`,
		PreRunE: processSimConfig,
		RunE:    run,
	}
	simConfig = &common.SimConfig{}
)

func init() {
	key := "entities"
	SimCmd.Flags().Int(key, 100_000, util.WrapString("Number of entities alive at the start of the run"))
	key = "components"
	SimCmd.Flags().Int(key, 4, util.WrapString("Number of component kinds with a payload"))
	key = "component-size"
	SimCmd.Flags().Int(key, 16, util.WrapString("Payload size of every component kind in bytes (min 8)"))
	key = "tags"
	SimCmd.Flags().Int(key, 2, util.WrapString("Number of component kinds without payload"))
	key = "systems"
	SimCmd.Flags().Int(key, 8, util.WrapString("Number of systems, each matching a random subset of the component kinds"))
	key = "steps"
	SimCmd.Flags().Int(key, 100, util.WrapString("Number of world steps"))
	key = "churn"
	SimCmd.Flags().Float64(key, 0.01, util.WrapString("Fraction of the entities deleted and respawned before every step"))
	key = "seed"
	SimCmd.Flags().Int64(key, 0, util.WrapString("Seed of the pseudo random generator (0 = random)"))
	key = "events"
	SimCmd.Flags().Bool(key, false, util.WrapString("Forward lifecycle events to an observer goroutine and report their counts"))
}

func processSimConfig(cmd *cobra.Command, _ []string) error {
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	simConfig = &common.SimConfig{
		Entities:      viper.GetInt("entities"),
		Components:    viper.GetInt("components"),
		ComponentSize: viper.GetInt("component-size"),
		Tags:          viper.GetInt("tags"),
		Systems:       viper.GetInt("systems"),
		Steps:         viper.GetInt("steps"),
		Churn:         viper.GetFloat64("churn"),
		Seed:          viper.GetInt64("seed"),
		Events:        viper.GetBool("events"),
		LogLevel:      viper.GetString("log-level"),
	}

	switch {
	case simConfig.Entities < 0 || simConfig.Steps < 0 || simConfig.Systems < 0:
		return fmt.Errorf("--entities, --steps and --systems must not be negative")
	case simConfig.Components < 0 || simConfig.Tags < 0 || simConfig.Components+simConfig.Tags == 0:
		return fmt.Errorf("at least one component or tag is required")
	case simConfig.ComponentSize < 8:
		return fmt.Errorf("--component-size must be at least 8")
	case simConfig.Churn < 0 || simConfig.Churn > 1:
		return fmt.Errorf("--churn must be between 0 and 1")
	}
	if simConfig.Seed == 0 {
		simConfig.Seed = time.Now().UnixNano()
	}
	return nil
}

// simulation is the state of one run
type simulation struct {
	rng      *rand.Rand
	world    *registry.World
	kinds    []registry.Entity // components followed by tags
	payloads int               // number of leading kinds with a payload
	alive    []registry.Entity
	visited  int64
}

func run(_ *cobra.Command, _ []string) error {
	fmt.Println(util.Heading("Entity registry simulation on the nibble index"))

	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Print(simConfig.String())
	fmt.Println()

	opts := registry.DefaultOptions()
	opts.InitialCapacity = simConfig.Entities
	opts.Events = simConfig.Events
	world, err := registry.New(opts)
	if err != nil {
		return fmt.Errorf("failed to create world: %w", err)
	}

	var (
		counts   [registry.EventRemove + 1]int
		observed chan struct{}
	)
	if events := world.Events(); events != nil {
		observed = make(chan struct{})
		go func() {
			defer close(observed)
			for ev := range events {
				counts[ev.Type]++
			}
		}()
	}

	s := &simulation{
		rng:   rand.New(rand.NewSource(simConfig.Seed)),
		world: world,
	}
	if err := s.setup(); err != nil {
		_ = world.Close()
		return err
	}

	reg := metrics.NewRegistry()
	stepTimer := metrics.NewTimer()
	throughput := metrics.NewMeter()
	_ = reg.Register("sim.step", stepTimer)
	_ = reg.Register("sim.entities", throughput)

	fmt.Println("running steps...")
	for step := 0; step < simConfig.Steps; step++ {
		if err := s.churn(); err != nil {
			_ = world.Close()
			return fmt.Errorf("step %d: %w", step, err)
		}

		before := s.visited
		start := time.Now()
		err := world.Step()
		stepTimer.UpdateSince(start)
		if err != nil {
			_ = world.Close()
			return fmt.Errorf("step %d: %w", step, err)
		}
		throughput.Mark(s.visited - before)
	}
	throughput.Stop()

	info := world.Info()
	if err := world.Close(); err != nil {
		return fmt.Errorf("failed to close world: %w", err)
	}
	if observed != nil {
		<-observed
	}

	fmt.Println()
	fmt.Println(util.Heading("Results"))
	ps := stepTimer.Percentiles([]float64{0.5, 0.9, 0.99})
	fmt.Printf("  %-22s: %d\n", "Steps", stepTimer.Count())
	fmt.Printf("  %-22s: %s\n", "Step Mean", time.Duration(stepTimer.Mean()))
	fmt.Printf("  %-22s: %s / %s / %s\n", "Step p50 / p90 / p99",
		time.Duration(ps[0]), time.Duration(ps[1]), time.Duration(ps[2]))
	fmt.Printf("  %-22s: %d\n", "Entities Visited", throughput.Count())
	fmt.Printf("  %-22s: %.0f /sec\n", "Throughput", throughput.RateMean())

	fmt.Println()
	fmt.Println(util.Heading("World"))
	fmt.Printf("  %-22s: %d\n", "Entities", info.Entities)
	fmt.Printf("  %-22s: %d\n", "Components", info.Components)
	fmt.Printf("  %-22s: %d\n", "Systems", info.Systems)
	fmt.Printf("  %-22s: %d\n", "Recyclable IDs", info.Recyclable)
	fmt.Printf("  %-22s: %d\n", "Payloads", info.Payloads)
	fmt.Printf("  %-22s: %d (median %d bytes)\n", "Attachments", info.Given.Count, info.Given.Median)
	fmt.Printf("  %-22s: %d bytes\n", "Arena", info.ArenaBytes)
	fmt.Printf("  %-22s: %d nodes, %d growths\n", "Identity Index", info.Identity.LiveNodes, info.Identity.Growths)

	if observed != nil {
		fmt.Println()
		fmt.Println(util.Heading("Events"))
		for t, n := range counts {
			fmt.Printf("  %-22s: %d\n", registry.EventType(t), n)
		}
	}
	return nil
}

// setup registers the kinds and systems and spawns the initial entities
func (s *simulation) setup() error {
	for i := 0; i < simConfig.Components; i++ {
		c, err := s.world.Component(simConfig.ComponentSize)
		if err != nil {
			return err
		}
		s.kinds = append(s.kinds, c)
	}
	s.payloads = len(s.kinds)
	for i := 0; i < simConfig.Tags; i++ {
		t, err := s.world.Tag()
		if err != nil {
			return err
		}
		s.kinds = append(s.kinds, t)
	}

	for i := 0; i < simConfig.Systems; i++ {
		if err := s.addSystem(i); err != nil {
			return err
		}
	}

	s.alive = make([]registry.Entity, 0, simConfig.Entities)
	for i := 0; i < simConfig.Entities; i++ {
		if err := s.spawn(); err != nil {
			return err
		}
	}
	clog.Infof("spawned %d entities over %d kinds", len(s.alive), len(s.kinds))
	return nil
}

// addSystem registers a system over one or two random kinds. Systems over a
// payload component count their visits in the payload, every third system
// only accepts odd ids.
func (s *simulation) addSystem(n int) error {
	first := s.rng.Intn(len(s.kinds))
	required := []registry.Entity{s.kinds[first]}
	if second := s.rng.Intn(len(s.kinds)); second != first && s.rng.Intn(2) == 0 {
		required = append(required, s.kinds[second])
	}

	var filter registry.Filter
	if n%3 == 2 {
		filter = func(e registry.Entity) bool { return e.ID()%2 == 1 }
	}

	counter := required[0]
	hasPayload := first < s.payloads
	_, err := s.world.System(func(e registry.Entity) {
		s.visited++
		if !hasPayload {
			return
		}
		if data, err := s.world.Get(e, counter); err == nil {
			binary.LittleEndian.PutUint64(data, binary.LittleEndian.Uint64(data)+1)
		}
	}, filter, required...)
	return err
}

// spawn creates an entity with every kind attached with probability 1/2
func (s *simulation) spawn() error {
	e, err := s.world.Spawn()
	if err != nil {
		return err
	}
	for _, c := range s.kinds {
		if s.rng.Intn(2) == 0 {
			continue
		}
		if _, err := s.world.Give(e, c); err != nil {
			return err
		}
	}
	s.alive = append(s.alive, e)
	return nil
}

// churn deletes and respawns the configured share of entities
func (s *simulation) churn() error {
	n := int(float64(len(s.alive)) * simConfig.Churn)
	for i := 0; i < n; i++ {
		j := s.rng.Intn(len(s.alive))
		if err := s.world.Delete(s.alive[j]); err != nil {
			return err
		}
		s.alive[j] = s.alive[len(s.alive)-1]
		s.alive = s.alive[:len(s.alive)-1]
	}
	for i := 0; i < n; i++ {
		if err := s.spawn(); err != nil {
			return err
		}
	}
	return nil
}
