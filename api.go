// Package hitrace emits kernel trace markers and carries a distributed trace
// chain ID through a call chain.
//
// hitrace writes synchronous, asynchronous and counter events into the ftrace
// trace_marker file, and provides a fixed-layout 128-bit chain ID that follows
// a request across goroutines and processes.
//
// Core Components:
//   - Tracer: Validates and emits trace events through a Backend.
//   - Backend: The narrow sink interface. MarkerBackend writes trace_marker.
//   - Chain: The trace ID slot owned by one goroutine.
//   - ID: A chain id, span id, parent span id and flag set packed in two words.
//
// Basic Usage:
//
//	cfg := hitrace.DefaultConfig()
//	cfg.Tags |= hitrace.TagApp
//	tracer, err := hitrace.New(cfg)
//	if err != nil {
//		return err
//	}
//	defer tracer.Close()
//
//	ctx, chain := tracer.WithChain(ctx)
//	id := chain.Begin("checkout", hitrace.FlagDefault)
//	defer chain.End(id)
//
//	_ = tracer.StartTrace(hitrace.TagApp, "load-cart")
//	defer tracer.FinishTrace(hitrace.TagApp)
//
// Thread Safety:
//
// Tracer is safe for concurrent use by multiple goroutines.
//
// A Chain is the per-goroutine slot and is NOT safe for concurrent use. Hand a
// new goroutine its own slot with Chain.Fork, or move an ID across a process
// boundary with ID.ToBytes and FromBytes.
//
// Events are fire-and-forget. The tracer keeps no queue; each event costs one
// write to the backend.
package hitrace

// Tag is a trace category bitmask. An event is emitted only when its tag is
// enabled on the tracer.
type Tag uint64

// Trace categories.
const (
	TagNever                  Tag = 0
	TagAlways                 Tag = 1 << 0
	TagDLPCredential          Tag = 1 << 21
	TagAccessControl          Tag = 1 << 22
	TagNet                    Tag = 1 << 23
	TagNWeb                   Tag = 1 << 24
	TagHUKS                   Tag = 1 << 25
	TagUserIAM                Tag = 1 << 26
	TagDistributedAudio       Tag = 1 << 27
	TagDLSM                   Tag = 1 << 28
	TagFileManagement         Tag = 1 << 29
	TagOHOS                   Tag = 1 << 30
	TagAbilityManager         Tag = 1 << 31
	TagCamera                 Tag = 1 << 32
	TagMedia                  Tag = 1 << 33
	TagImage                  Tag = 1 << 34
	TagAudio                  Tag = 1 << 35
	TagDistributedData        Tag = 1 << 36
	TagMDFS                   Tag = 1 << 37
	TagGraphicAGP             Tag = 1 << 38
	TagACE                    Tag = 1 << 39
	TagNotification           Tag = 1 << 40
	TagMisc                   Tag = 1 << 41
	TagMultimodalInput        Tag = 1 << 42
	TagSensors                Tag = 1 << 43
	TagMSDP                   Tag = 1 << 44
	TagDSoftBus               Tag = 1 << 45
	TagRPC                    Tag = 1 << 46
	TagArk                    Tag = 1 << 47
	TagWindowManager          Tag = 1 << 48
	TagAccountManager         Tag = 1 << 49
	TagDistributedScreen      Tag = 1 << 50
	TagDistributedCamera      Tag = 1 << 51
	TagDistributedHardwareFwk Tag = 1 << 52
	TagGlobalResMgr           Tag = 1 << 53
	TagDeviceManager          Tag = 1 << 54
	TagSAMgr                  Tag = 1 << 55
	TagPower                  Tag = 1 << 56
	TagDistributedSchedule    Tag = 1 << 57
	TagDeviceProfile          Tag = 1 << 58
	TagDistributedInput       Tag = 1 << 59
	TagBluetooth              Tag = 1 << 60
	TagAccessibilityManager   Tag = 1 << 61
	TagApp                    Tag = 1 << 62

	// TagNotReady marks a tag set that has not been loaded yet.
	TagNotReady Tag = 1 << 63

	// TagValidMask covers every assignable category bit.
	TagValidMask = (TagApp - 1) | TagApp
)

// normalizeTags applies the always-on bit and drops bits outside the mask.
func normalizeTags(tags Tag) Tag {
	return (tags | TagAlways) & TagValidMask
}
