package constants

const SpeedOfLight float64 = 299.792458 // [mm / ns]
const Curvature float64 = 0.299792458   // [MeV/c / (T mm)], R = p / (Curvature * q * B)

const ElectronMass float64 = 0.51099895 // [MeV]
const MuonMass float64 = 105.6583755    // [MeV]
const PionMass float64 = 139.57039      // [MeV]
const ProtonMass float64 = 938.27208816 // [MeV]
