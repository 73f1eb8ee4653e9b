package config

// DefaultValues is the default configuration; endpoint, bridge and key
// values depend on the deployment and have no defaults.
const DefaultValues = `
DBPath = "./"
SigningKeyType = "secp256k1"
WitnessSubmit = false
MaxAttestations = 8
HeartbeatInterval = "10s"

[Log]
Environment = "development"
Level = "info"
Outputs = ["stderr"]

[RPC]
Host = "0.0.0.0"
Port = 6010
ReadTimeout = "60s"
WriteTimeout = "60s"
MaxRequestsPerIPAndSecond = 500
`
