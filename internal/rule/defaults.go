package rule

import "time"

// Defaults returns the built-in rule set seeded on first run. Every default
// ships disabled; enabling one is always an explicit user action. The ids
// are fixed so the defaults stay addressable across installs.
func Defaults() []Rule {
	now := time.Now().UTC()
	return []Rule{
		{
			ID:   "builtin-smb",
			Name: "Windows file sharing (SMB)",
			Kind: KindService,
			Service: &ServiceRule{
				Name: "smb",
				Ports: []ServicePort{
					{Port: 445, Transport: TCP},
					{Port: 139, Transport: TCP},
				},
			},
			Description: "Blocks SMB shares from syncing over the current network.",
			CreatedAt:   now,
		},
		{
			ID:          "builtin-afp",
			Name:        "Apple file sharing (AFP)",
			Kind:        KindPort,
			Port:        &PortRule{Number: 548, Transport: TCP},
			Description: "Blocks AFP volume traffic.",
			CreatedAt:   now,
		},
		{
			ID:          "builtin-ftp",
			Name:        "FTP transfers",
			Kind:        KindPortRange,
			Range:       &PortRangeRule{Start: 20, End: 21, Transport: TCP},
			Description: "Blocks FTP data and control channels.",
			CreatedAt:   now,
		},
		{
			ID:          "builtin-bittorrent",
			Name:        "BitTorrent",
			Kind:        KindPortRange,
			Range:       &PortRangeRule{Start: 6881, End: 6889, Transport: Both},
			Description: "Blocks the common BitTorrent peer port range.",
			CreatedAt:   now,
		},
		{
			ID:          "builtin-dropbox",
			Name:        "Dropbox",
			Kind:        KindApplication,
			App:         &ApplicationRule{BundleID: "com.dropbox.Dropbox", DisplayName: "Dropbox"},
			Description: "Blocks Dropbox LAN sync traffic by port.",
			CreatedAt:   now,
		},
	}
}
