package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/solbot/core/log"
)

const volumeTimerTick = time.Second

// minVolumeIntervalSec is the floor applied to a configured interval,
// regardless of what a session asked for; it exists so a misconfigured
// interval of 0 or 1 cannot turn the timer into a busy loop.
const minVolumeIntervalSec = 2

// VolumeTimer is C7: a single 1Hz driver per cluster that arms a
// pendingAction for every running, volume-enabled session whose
// interval has elapsed since its last volume action.
type VolumeTimer struct {
	cluster *ClusterRuntime

	stopCh chan struct{}
	doneCh chan struct{}

	logger log.Logger
}

func NewVolumeTimer(cluster *ClusterRuntime) *VolumeTimer {
	return &VolumeTimer{
		cluster: cluster,
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
		logger:  log.NewModuleLogger(log.VolumeTimer).With("cluster", string(cluster.cluster)),
	}
}

// Start launches the driver goroutine. It is idempotent-in-spirit in
// that the caller (Engine) only ever holds one VolumeTimer per cluster
// and calls Start/Stop in lockstep with "is any session running".
func (v *VolumeTimer) Start(ctx context.Context) {
	go v.run(ctx)
}

func (v *VolumeTimer) Stop() {
	close(v.stopCh)
	<-v.doneCh
}

func (v *VolumeTimer) run(ctx context.Context) {
	defer close(v.doneCh)
	ticker := time.NewTicker(volumeTimerTick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-v.stopCh:
			return
		case <-ticker.C:
			v.tick()
		}
	}
}

func (v *VolumeTimer) tick() {
	now := nowMs()
	for _, session := range v.cluster.allSessions() {
		snap := session.Snapshot()
		if !snap.Running || snap.Config == nil {
			continue
		}
		if snap.Config.Mode != ModeVolume || !snap.Config.Volume.Enabled {
			continue
		}

		intervalSec := snap.Config.Volume.IntervalSec
		if intervalSec < minVolumeIntervalSec {
			intervalSec = minVolumeIntervalSec
		}

		last := session.volumeTiming()
		if last != 0 && now-last < int64(intervalSec)*1000 {
			continue
		}

		reason := "one-leg volume action"
		if snap.Config.Volume.Roundtrip {
			reason = "roundtrip volume action"
		}

		pa := &PendingAction{
			Kind:             PendingActionSignAndBundle,
			Reason:           reason,
			Source:           SourceVolumeTimer,
			TriggerSignature: fmt.Sprintf("volumeTimer:%d", now),
			TargetMint:       snap.Config.Volume.TokenMint,
			NeedsUnsignedTxs: true,
		}
		if session.TryArmPendingAction(snap, pa) {
			session.bumpLastVolumeActionOnly(now)
			session.Info("volume timer armed a pending action")
		}
	}
}
