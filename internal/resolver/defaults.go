package resolver

import "github.com/danmuck/qlang/internal/protocol"

// Built-in command ids.
const (
	CmdWeights     uint32 = 0x01
	CmdCache       uint32 = 0x02
	CmdRetrain     uint32 = 0x03
	CmdIncremental uint32 = 0x04
)

// Built-in operations. The low nibble is 0xA for the low-resource variant and
// 0xB for the high-resource variant of the same command.
var (
	OpLocalWeightUpdate = Operation{Code: 0x1A, Name: "LOCAL_WEIGHT_UPDATE"}
	OpFullSyncRequest   = Operation{Code: 0x1B, Name: "FULL_SYNC_REQUEST"}
	OpCacheStoreLocal   = Operation{Code: 0x2A, Name: "CACHE_STORE_LOCAL"}
	OpCacheReplicate    = Operation{Code: 0x2B, Name: "CACHE_REPLICATE"}
	OpRetrainSchedule   = Operation{Code: 0x3A, Name: "RETRAIN_SCHEDULE"}
	OpRetrainFull       = Operation{Code: 0x3B, Name: "RETRAIN_FULL"}
	OpIncrementalApply  = Operation{Code: 0x4A, Name: "INCREMENTAL_APPLY"}
	OpIncrementalStream = Operation{Code: 0x4B, Name: "INCREMENTAL_STREAM"}
)

// Default returns a new table holding the built-in SoC mapping.
func Default() *Table {
	t := NewTable()
	for _, row := range []struct {
		cmd       uint32
		low, high Operation
	}{
		{CmdWeights, OpLocalWeightUpdate, OpFullSyncRequest},
		{CmdCache, OpCacheStoreLocal, OpCacheReplicate},
		{CmdRetrain, OpRetrainSchedule, OpRetrainFull},
		{CmdIncremental, OpIncrementalApply, OpIncrementalStream},
	} {
		err := t.Register(row.cmd, map[protocol.ContextFlag]Operation{
			protocol.ContextLowResource:  row.low,
			protocol.ContextHighResource: row.high,
		})
		if err != nil {
			panic(err)
		}
	}
	return t
}
