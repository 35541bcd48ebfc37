package discovery

import (
	"context"

	log "github.com/sirupsen/logrus"
)

// HandleSCN implements the iSNS state-change reaction path (§4.G). It
// is invoked on whatever thread the iSNS codec selects for delivering
// a callback; it takes the same registry lock the workers use, so the
// two ingest paths serialize naturally.
func HandleSCN(reg *Registry, isns ISNSClient, scnType SCNType, sourceKey string) {
	switch scnType {
	case SCNObjAdded:
		handleObjAdded(reg, isns, sourceKey)
	case SCNObjRemoved:
		if err := reg.Del(sourceKey, MethodISNS, nil); err != nil {
			log.WithField("source", sourceKey).Warn("discovery: isns scn removal left sessions in place")
		}
	case SCNObjUpdated:
		log.WithField("source", sourceKey).Info("discovery: isns scn object updated")
	default:
		log.WithFields(log.Fields{"source": sourceKey, "type": uint32(scnType)}).
			Info("discovery: isns scn unrecognized type")
	}
}

func handleObjAdded(reg *Registry, isns ISNSClient, sourceKey string) {
	groups, err := isns.QueryOneNode(context.Background(), sourceKey, 0, "")
	if err != nil {
		log.WithField("source", sourceKey).Warn("discovery: isns scn node query failed")
		return
	}
	for _, g := range groups {
		if err := reg.Add(MethodISNS, g.ServerAddr, g.TargetName, g.TPGT, g.TargetAddr); err != nil {
			log.WithField("target", g.TargetName).Warn("discovery: isns scn add failed")
		}
	}
	reg.LoginTargets(sourceKey, MethodISNS, nil)
}
