package rule

// knownAppPorts maps application bundle identifiers to the ports those
// applications are known to use for their own traffic. The table is a
// deliberately small heuristic: it only lists applications whose traffic is
// distinguishable by port, never shared ports like 443.
var knownAppPorts = map[string][]ServicePort{
	"com.dropbox.Dropbox": {
		{Port: 17500, Transport: Both}, // LAN sync discovery and transfer
	},
	"com.spotify.client": {
		{Port: 4070, Transport: TCP},
		{Port: 57621, Transport: Both}, // Connect device discovery
	},
	"com.valvesoftware.steam": {
		{Port: 27036, Transport: Both}, // local streaming and broadcast
	},
	"com.plexapp.plexmediaserver": {
		{Port: 32400, Transport: TCP},
	},
	"com.teamviewer.TeamViewer": {
		{Port: 5938, Transport: Both},
	},
	"org.bittorrent.transmission": {
		{Port: 51413, Transport: Both},
	},
}

// KnownPorts returns the advisory port list for an application bundle
// identifier, or nil when nothing is known. Callers must treat the result as
// read-only.
func KnownPorts(bundleID string) []ServicePort {
	return knownAppPorts[bundleID]
}
