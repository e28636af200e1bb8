package ramses

// Router performs the first stage of address resolution: translating a
// CPU-visible physical address into the address the memory controller
// actually decodes, and back.
type Router interface {
	Route(addr PhysAddr) MemAddr
	RouteReverse(addr MemAddr) PhysAddr
}

// PassthruRouter is the identity router: memaddr == physaddr. It is the
// right choice whenever the platform has no PCI memory hole or other
// address-space gymnastics to undo.
type PassthruRouter struct{}

func (PassthruRouter) Route(addr PhysAddr) MemAddr        { return MemAddr(addr) }
func (PassthruRouter) RouteReverse(addr MemAddr) PhysAddr { return PhysAddr(addr) }

// X86GenericOpts describes the system memory map a generic x86 platform
// exposes: everything below TopOfMem maps straight through, everything at
// or above it has been pushed up past the PCI MMIO hole and gets folded
// back down starting at PCIStart.
type X86GenericOpts struct {
	// Remap enables the PCI memory hole remapping below. When false the
	// router behaves exactly like PassthruRouter.
	Remap bool
	// IntelME reserves the top 16MiB of RAM for the Intel Management
	// Engine, shrinking the addressable top-of-memory boundary by that
	// much before the hole calculation runs.
	IntelME  bool
	PCIStart PhysAddr
	TopOfMem PhysAddr
}

func (o X86GenericOpts) topOfMem() PhysAddr {
	tom := o.TopOfMem
	if o.IntelME {
		tom -= 16 << 20
	}
	return tom
}

// X86GenericRouter implements the generic x86 PCI-hole remapping scheme.
type X86GenericRouter struct {
	Opts X86GenericOpts
}

func (r X86GenericRouter) Route(addr PhysAddr) MemAddr {
	if !r.Opts.Remap {
		return MemAddr(addr)
	}
	tom := r.Opts.topOfMem()
	if addr < tom {
		return MemAddr(addr)
	}
	return MemAddr(r.Opts.PCIStart + (addr - tom))
}

func (r X86GenericRouter) RouteReverse(addr MemAddr) PhysAddr {
	if !r.Opts.Remap {
		return PhysAddr(addr)
	}
	tom := r.Opts.topOfMem()
	pa := PhysAddr(addr)
	if pa >= r.Opts.PCIStart && pa < 4<<30 {
		return pa - r.Opts.PCIStart + tom
	}
	return pa
}
