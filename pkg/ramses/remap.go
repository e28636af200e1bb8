package ramses

// Remapper performs the third and final stage of address resolution:
// on-DIMM trace remapping, where the row address presented to the DRAM
// chips does not match the row address the memory controller issued
// because of PCB trace routing tricks. Remappers are involutions: running
// the same remap twice is the identity.
type Remapper interface {
	Remap(addr DRAMAddr) DRAMAddr
	RemapReverse(addr DRAMAddr) DRAMAddr
}

// NoneRemap leaves addresses untouched.
type NoneRemap struct{}

func (NoneRemap) Remap(addr DRAMAddr) DRAMAddr        { return addr }
func (NoneRemap) RemapReverse(addr DRAMAddr) DRAMAddr { return addr }

// R3X0Remap XORs row bit 3 into row bit 0.
type R3X0Remap struct{}

func (R3X0Remap) Remap(addr DRAMAddr) DRAMAddr {
	addr.Row ^= uint16(bitAt(3, uint64(addr.Row)))
	return addr
}
func (r R3X0Remap) RemapReverse(addr DRAMAddr) DRAMAddr { return r.Remap(addr) }

// R3X21Remap XORs row bit 3 into row bits 2 and 1.
type R3X21Remap struct{}

func (R3X21Remap) Remap(addr DRAMAddr) DRAMAddr {
	if bitAt(3, uint64(addr.Row)) != 0 {
		addr.Row ^= 6
	}
	return addr
}
func (r R3X21Remap) RemapReverse(addr DRAMAddr) DRAMAddr { return r.Remap(addr) }

// R3X210Remap XORs row bit 3 into its own three least-significant bits.
type R3X210Remap struct{}

func (R3X210Remap) Remap(addr DRAMAddr) DRAMAddr {
	if bitAt(3, uint64(addr.Row)) != 0 {
		addr.Row ^= 7
	}
	return addr
}
func (r R3X210Remap) RemapReverse(addr DRAMAddr) DRAMAddr { return r.Remap(addr) }
