package discovery

// ParamID enumerates the catalogue of login parameters this core can
// project onto a transport-engine SetRequest. The ordering mirrors the
// ISCSI_LOGIN_PARAM_* enum from the original initiator: boolean
// parameters first, then settable integers, then the three integers
// that are accepted into the catalogue but never actually settable.
type ParamID uint32

const (
	ParamDataSequenceInOrder ParamID = iota
	ParamImmediateData
	ParamInitialR2T
	ParamDataPDUInOrder

	ParamHeaderDigest
	ParamDataDigest
	ParamDefaultTime2Retain
	ParamDefaultTime2Wait
	ParamMaxRecvDataSegmentLength
	ParamFirstBurstLength
	ParamMaxBurstLength

	// Catalogued but not currently settable.
	ParamMaxConnections
	ParamOutstandingR2T
	ParamErrorRecoveryLevel

	paramCount
)

// boolParams is the set of ParamIDs whose SetRequest.Value is boolean;
// every other catalogued, settable ParamID is integer-valued.
var boolParams = map[ParamID]bool{
	ParamDataSequenceInOrder: true,
	ParamImmediateData:       true,
	ParamInitialR2T:          true,
	ParamDataPDUInOrder:      true,
}

// unsettableParams mirrors the "integer parameters which currently are
// unsettable" block of the original projector: catalogued, recognized,
// but always rejected with Unsupported.
var unsettableParams = map[ParamID]bool{
	ParamMaxConnections:     true,
	ParamOutstandingR2T:     true,
	ParamErrorRecoveryLevel: true,
}

// LoginParams is the decoded persistent_param_t.p_params payload: one
// field per catalogued parameter, addressed by name rather than by a
// shared union so that each parameter maps unambiguously to its own
// field (the original iscsid_copyto_param_set conflated
// DataSequenceInOrder and DataPDUInOrder onto a single field; see
// DESIGN.md for the discrepancy this spec corrects).
type LoginParams struct {
	DataSequenceInOrder bool
	ImmediateData       bool
	InitialR2T          bool
	DataPDUInOrder      bool

	HeaderDigest             int
	DataDigest               int
	DefaultTime2Retain       int
	DefaultTime2Wait         int
	MaxRecvDataSegmentLength int
	FirstBurstLength         int
	MaxBurstLength           int
}

// SetRequest is the typed, projected request the transport engine's
// set_params entry point consumes.
type SetRequest struct {
	Param ParamID
	Bool  bool
	Int   int
	IsInt bool
}

// ProjectParam maps a catalogued parameter id and its backing
// LoginParams onto a typed SetRequest. Parameters outside the
// catalogue, and the three currently-unsettable integers, fail with
// ErrUnsupported.
func ProjectParam(id ParamID, p LoginParams) (SetRequest, error) {
	if id >= paramCount {
		return SetRequest{}, newErr(ErrUnsupported, "params.project", nil)
	}
	if unsettableParams[id] {
		return SetRequest{}, newErr(ErrUnsupported, "params.project", nil)
	}

	req := SetRequest{Param: id}
	if boolParams[id] {
		switch id {
		case ParamDataSequenceInOrder:
			req.Bool = p.DataSequenceInOrder
		case ParamImmediateData:
			req.Bool = p.ImmediateData
		case ParamInitialR2T:
			req.Bool = p.InitialR2T
		case ParamDataPDUInOrder:
			req.Bool = p.DataPDUInOrder
		}
		return req, nil
	}

	req.IsInt = true
	switch id {
	case ParamHeaderDigest:
		req.Int = p.HeaderDigest
	case ParamDataDigest:
		req.Int = p.DataDigest
	case ParamDefaultTime2Retain:
		req.Int = p.DefaultTime2Retain
	case ParamDefaultTime2Wait:
		req.Int = p.DefaultTime2Wait
	case ParamMaxRecvDataSegmentLength:
		req.Int = p.MaxRecvDataSegmentLength
	case ParamFirstBurstLength:
		req.Int = p.FirstBurstLength
	case ParamMaxBurstLength:
		req.Int = p.MaxBurstLength
	default:
		return SetRequest{}, newErr(ErrUnsupported, "params.project", nil)
	}
	return req, nil
}
