package record

// Fixed per-kind costs used by the size estimate. The numbers approximate
// heap usage; they only need to be stable so that LRU accounting adds up.
const (
	recordOverhead    = 64
	fieldOverhead     = 16
	nullCost          = 4
	boolCost          = 16
	numberCost        = 16
	stringOverhead    = 16
	listOverhead      = 16
	compositeOverhead = 16
	referenceOverhead = 16
)

// SizeEstimateBytes estimates the memory held by r.
func SizeEstimateBytes(r *Record) int {
	if r == nil {
		return 0
	}
	size := recordOverhead + len(r.Key)
	for k, v := range r.Fields {
		size += fieldSize(k, v)
	}
	return size
}

// AdjustSizeEstimate derives the size of next from the size of previous by
// re-weighing only the changed fields, so merges stay proportional to the
// number of changed fields.
func AdjustSizeEstimate(size int, previous, next *Record, changedFieldKeys []string) int {
	if previous == nil {
		return SizeEstimateBytes(next)
	}
	for _, k := range changedFieldKeys {
		if old, ok := previous.Fields[k]; ok {
			size -= fieldSize(k, old)
		}
		if v, ok := next.Fields[k]; ok {
			size += fieldSize(k, v)
		}
	}
	return size
}

func fieldSize(fieldKey string, v Value) int {
	return fieldOverhead + len(fieldKey) + valueSize(v)
}

func valueSize(v Value) int {
	switch x := v.(type) {
	case nil, Null:
		return nullCost
	case Bool:
		return boolCost
	case Int, Float:
		return numberCost
	case String:
		return stringOverhead + len(x)
	case Reference:
		return referenceOverhead + len(x)
	case List:
		size := listOverhead
		for _, item := range x {
			size += valueSize(item)
		}
		return size
	case Composite:
		size := compositeOverhead
		for k, item := range x {
			size += len(k) + valueSize(item)
		}
		return size
	default:
		return 0
	}
}
