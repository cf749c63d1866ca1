package rbac

// DefaultMatrix returns the static fallback table used when no
// backend-synced matrix is cached. It is structurally identical to the
// synced shape so the Authorizer treats both uniformly. SUPER_ADMIN is
// intentionally absent: its bypass is hard-coded, never stored.
func DefaultMatrix() Matrix {
	return Matrix{
		RoleAdminPusat: {
			ResourceMasterUnit:      {ActionView, ActionCreate, ActionEdit, ActionDelete},
			ResourceMasterPelanggan: {ActionView, ActionCreate, ActionEdit, ActionDelete, ActionExport},
			ResourceInvoice:         {ActionView, ActionCreate, ActionEdit, ActionVerify, ActionExport},
			ResourcePembayaran:      {ActionView, ActionVerify},
			ResourceWorkOrder:       {ActionView, ActionCreate, ActionEdit, ActionDelete},
			ResourceProspek:         {ActionView, ActionCreate, ActionEdit, ActionDelete},
			ResourceCoverage:        {ActionView, ActionExport},
			ResourceWhatsApp:        {ActionView, ActionCreate},
			ResourceSettingsUser:    {ActionView, ActionCreate, ActionEdit, ActionImpersonate},
			ResourceSettingsRole:    {ActionView, ActionEdit},
		},
		RoleAdminCabang: {
			ResourceMasterUnit:      {ActionView},
			ResourceMasterPelanggan: {ActionView, ActionCreate, ActionEdit},
			ResourceInvoice:         {ActionView, ActionCreate, ActionExport},
			ResourcePembayaran:      {ActionView},
			ResourceWorkOrder:       {ActionView, ActionCreate, ActionEdit},
			ResourceProspek:         {ActionView, ActionCreate, ActionEdit},
			ResourceCoverage:        {ActionView},
		},
		RoleAdminUnit: {
			ResourceMasterPelanggan: {ActionView, ActionCreate},
			ResourceInvoice:         {ActionView},
			ResourceWorkOrder:       {ActionView, ActionCreate},
			ResourceProspek:         {ActionView, ActionCreate},
		},
		RoleSupervisor: {
			ResourceMasterPelanggan: {ActionView},
			ResourceInvoice:         {ActionView, ActionVerify},
			ResourcePembayaran:      {ActionView, ActionVerify},
			ResourceWorkOrder:       {ActionView, ActionVerify},
			ResourceProspek:         {ActionView},
			ResourceCoverage:        {ActionView},
		},
		RoleSales: {
			ResourceProspek:  {ActionView, ActionCreate, ActionEdit},
			ResourceCoverage: {ActionView},
		},
		RoleTechnician: {
			ResourceWorkOrder: {ActionView, ActionEdit},
			ResourceCoverage:  {ActionView},
		},
		RoleUser: {
			ResourceInvoice:    {ActionView, ActionPay},
			ResourcePembayaran: {ActionView},
		},
	}
}
